package engine

import (
	"log/slog"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/SoftComply/marketing-automation/internal/crm"
	"github.com/SoftComply/marketing-automation/internal/dealgen"
)

// Tally accumulates the monetary amounts of events the generator
// deliberately ignored, by reason, so the run summary can prove that
// every marketplace dollar was either synced or accounted for.
type Tally struct {
	amounts map[string]float64
}

// NewTally builds an empty tally.
func NewTally() *Tally {
	return &Tally{amounts: make(map[string]float64)}
}

// Ignore records an ignored amount. Satisfies dealgen.IgnoreFunc.
func (t *Tally) Ignore(reason string, amount float64) {
	t.amounts[reason] += amount
}

// Total returns the sum across all reasons.
func (t *Tally) Total() float64 {
	var total float64
	for _, v := range t.amounts {
		total += v
	}
	return total
}

// ByReason returns a copy of the per-reason amounts.
func (t *Tally) ByReason() map[string]float64 {
	out := make(map[string]float64, len(t.amounts))
	for k, v := range t.amounts {
		out[k] = v
	}
	return out
}

// Summary is the reconciliation report of one run.
type Summary struct {
	RunID string

	DealsCreated int
	DealsUpdated int
	Noops        int

	TotalDealCount int
	TotalDealValue float64

	DuplicateGroups int
	DuplicateDeals  int
	DuplicateValue  float64

	IgnoredTotal    float64
	IgnoredByReason map[string]float64
}

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands separators for the
// summary tables.
func FormatMoney(v float64) string {
	return moneyPrinter.Sprintf("$%.2f", v)
}

func buildSummary(runID string, c *crm.CRM, actions []dealgen.Action, tally *Tally) *Summary {
	s := &Summary{
		RunID:           runID,
		IgnoredTotal:    tally.Total(),
		IgnoredByReason: tally.ByReason(),
	}

	for _, a := range actions {
		switch a.Type {
		case dealgen.ActionCreate:
			s.DealsCreated++
		case dealgen.ActionUpdate:
			s.DealsUpdated++
		case dealgen.ActionNoop:
			s.Noops++
		}
	}

	for _, deal := range c.Deals.Deals() {
		s.TotalDealCount++
		if v, ok := deal.Value(); ok {
			s.TotalDealValue += v
		}
	}

	for _, group := range c.Deals.DuplicateGroups() {
		s.DuplicateGroups++
		for _, dup := range group.Duplicates {
			s.DuplicateDeals++
			if v, ok := (*crm.Deal)(dup).Value(); ok {
				s.DuplicateValue += v
			}
		}
	}

	return s
}

// Log writes the summary through structured logging, one line per
// concern so downstream log tooling can filter them.
func (s *Summary) Log(logger *slog.Logger) {
	logger.Info("run summary",
		"run", s.RunID,
		"created", s.DealsCreated,
		"updated", s.DealsUpdated,
		"noops", s.Noops)
	logger.Info("deal totals",
		"run", s.RunID,
		"deals", s.TotalDealCount,
		"value", FormatMoney(s.TotalDealValue))
	if s.DuplicateGroups > 0 {
		logger.Info("duplicate deals marked for deletion",
			"run", s.RunID,
			"groups", s.DuplicateGroups,
			"deals", s.DuplicateDeals,
			"value", FormatMoney(s.DuplicateValue))
	}

	reasons := make([]string, 0, len(s.IgnoredByReason))
	for reason := range s.IgnoredByReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		logger.Info("ignored amount",
			"run", s.RunID,
			"reason", reason,
			"value", FormatMoney(s.IgnoredByReason[reason]))
	}
}
