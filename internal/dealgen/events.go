// Package dealgen turns ordered marketplace business events into the
// minimal set of CRM deal actions: create, update or no-op. It owns the
// business-identifier cross-reference over the deal collection and the
// duplicate resolution that collapses multiple matched deals into one
// canonical deal per event.
package dealgen

import (
	"fmt"
	"strings"

	"github.com/SoftComply/marketing-automation/internal/mpac"
)

// EventType classifies a business event.
type EventType string

const (
	EventEval     EventType = "eval"
	EventPurchase EventType = "purchase"
	EventRenewal  EventType = "renewal"
	EventUpgrade  EventType = "upgrade"
	EventRefund   EventType = "refund"
)

// EventMeta tags an event the generator must not act on.
type EventMeta string

const (
	MetaNone             EventMeta = ""
	MetaArchivedApp      EventMeta = "archived-app"
	MetaMassProviderOnly EventMeta = "mass-provider-only"
)

// Event is one ordered business event derived from license/transaction
// history by the upstream pipeline. Which payload fields are set depends
// on Type: evals carry licenses, purchases carry licenses and usually a
// transaction, renewals and upgrades carry exactly one transaction, and
// refunds carry the refunded transactions.
type Event struct {
	Type EventType
	Meta EventMeta

	Licenses    []*mpac.License
	Transaction *mpac.Transaction
	RefundedTxs []*mpac.Transaction
}

// Abbrev renders a short identification of the event for log lines.
func (e *Event) Abbrev() string {
	switch e.Type {
	case EventEval:
		ids := make([]string, len(e.Licenses))
		for i, l := range e.Licenses {
			ids[i] = firstID(l.IDs())
		}
		return fmt.Sprintf("eval[%s]", strings.Join(ids, ","))
	case EventPurchase:
		tx := ""
		if e.Transaction != nil {
			tx = e.Transaction.TransactionID
		}
		return fmt.Sprintf("purchase[tx=%s licenses=%d]", tx, len(e.Licenses))
	case EventRenewal, EventUpgrade:
		return fmt.Sprintf("%s[tx=%s]", e.Type, e.Transaction.TransactionID)
	case EventRefund:
		ids := make([]string, len(e.RefundedTxs))
		for i, tx := range e.RefundedTxs {
			ids[i] = tx.TransactionID
		}
		return fmt.Sprintf("refund[%s]", strings.Join(ids, ","))
	default:
		return string(e.Type)
	}
}

func firstID(ids [3]string) string {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}
