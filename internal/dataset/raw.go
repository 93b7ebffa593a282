// Package dataset holds the raw, wire-adjacent form of a downloaded data
// set and its durable snapshot store. The downloader (out of process)
// produces these shapes; the engine consumes them and writes its action
// log back through the same store.
package dataset

import (
	"fmt"
	"strings"

	"github.com/SoftComply/marketing-automation/internal/mpac"
)

// RelativeAssociation references a related CRM record as "kind:id",
// e.g. "organization:1523". The id is relative to the same data set.
type RelativeAssociation string

// NewRelativeAssociation builds a "kind:id" reference.
func NewRelativeAssociation(kind, id string) RelativeAssociation {
	return RelativeAssociation(kind + ":" + id)
}

// Parts splits the reference into kind and id. Malformed references
// return an error rather than panicking; a single bad association must
// not abort the import of the remaining data set.
func (r RelativeAssociation) Parts() (kind, id string, err error) {
	kind, id, ok := strings.Cut(string(r), ":")
	if !ok || kind == "" || id == "" {
		return "", "", fmt.Errorf("malformed association reference %q", string(r))
	}
	return kind, id, nil
}

// RawRecord is one downloaded CRM record: remote id, the property bag as
// returned by the API, and relative references to associated records.
type RawRecord struct {
	ID           string                `json:"id"`
	Properties   map[string]string     `json:"properties"`
	Associations []RelativeAssociation `json:"associations,omitempty"`
}

// EventRecord is one business event as stored in a snapshot. Events are
// derived upstream (out of scope here) and reference marketplace records
// by id; the engine resolves them against the data set's own rows.
type EventRecord struct {
	Type string `json:"type"`
	Meta string `json:"meta,omitempty"`

	LicenseIDs    []string `json:"licenseIds,omitempty"`
	TransactionID string   `json:"transactionId,omitempty"`
	RefundedTxIDs []string `json:"refundedTxIds,omitempty"`
}

// DataSet is everything one engine run operates on: the marketplace
// records, the derived event stream, and the full CRM export. Snapshots
// of this shape are what the store persists and the import command
// ingests.
type DataSet struct {
	Licenses     []mpac.License     `json:"licenses"`
	Transactions []mpac.Transaction `json:"transactions"`
	Events       []EventRecord      `json:"events,omitempty"`

	Deals     []RawRecord `json:"deals"`
	Contacts  []RawRecord `json:"contacts"`
	Companies []RawRecord `json:"companies"`

	// FreeDomains lists mass email provider domains used by the event
	// derivation pipeline (out of scope here, carried for round-trips).
	FreeDomains []string `json:"freeDomains,omitempty"`
}
