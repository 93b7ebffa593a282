package engine

import (
	"log/slog"
	"sort"

	"github.com/SoftComply/marketing-automation/internal/dataset"
	"github.com/SoftComply/marketing-automation/internal/dealgen"
	"github.com/SoftComply/marketing-automation/internal/mpac"
)

// resolveEvents materializes the snapshot's event stream against its own
// license and transaction rows. A dangling record reference is a data
// anomaly: the event is logged and skipped, the rest of the stream
// proceeds.
func resolveEvents(ds *dataset.DataSet, logger *slog.Logger) []*dealgen.Event {
	licensesByID := make(map[string]*mpac.License)
	for i := range ds.Licenses {
		l := &ds.Licenses[i]
		for _, id := range l.IDs() {
			if id != "" {
				licensesByID[id] = l
			}
		}
	}
	txByID := make(map[string]*mpac.Transaction)
	for i := range ds.Transactions {
		tx := &ds.Transactions[i]
		txByID[tx.TransactionID] = tx
	}

	var events []*dealgen.Event
	for _, rec := range ds.Events {
		event := &dealgen.Event{
			Type: dealgen.EventType(rec.Type),
			Meta: dealgen.EventMeta(rec.Meta),
		}

		ok := true
		for _, id := range rec.LicenseIDs {
			l, found := licensesByID[id]
			if !found {
				logger.Warn("skipping event with unknown license", "event", rec.Type, "licenseId", id)
				ok = false
				break
			}
			event.Licenses = append(event.Licenses, l)
		}
		if rec.TransactionID != "" {
			tx, found := txByID[rec.TransactionID]
			if !found {
				logger.Warn("skipping event with unknown transaction", "event", rec.Type, "transactionId", rec.TransactionID)
				ok = false
			}
			event.Transaction = tx
		}
		for _, id := range rec.RefundedTxIDs {
			tx, found := txByID[id]
			if !found {
				logger.Warn("skipping event with unknown refunded transaction", "event", rec.Type, "transactionId", id)
				ok = false
				break
			}
			event.RefundedTxs = append(event.RefundedTxs, tx)
		}

		if ok {
			events = append(events, event)
		}
	}
	return events
}

// recordHistory returns every marketplace record ordered oldest first,
// by maintenance start for licenses and sale date for transactions.
// Feeds most-recent-wins property synthesis.
func recordHistory(ds *dataset.DataSet) []mpac.Record {
	records := make([]mpac.Record, 0, len(ds.Licenses)+len(ds.Transactions))
	for i := range ds.Licenses {
		records = append(records, &ds.Licenses[i])
	}
	for i := range ds.Transactions {
		records = append(records, &ds.Transactions[i])
	}
	sort.SliceStable(records, func(i, j int) bool {
		return recordDate(records[i]) < recordDate(records[j])
	})
	return records
}

func recordDate(rec mpac.Record) string {
	switch r := rec.(type) {
	case *mpac.License:
		return r.MaintenanceStartDate
	case *mpac.Transaction:
		return r.SaleDate
	default:
		return ""
	}
}
