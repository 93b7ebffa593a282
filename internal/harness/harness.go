package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/SoftComply/marketing-automation/internal/dealgen"
	"github.com/SoftComply/marketing-automation/internal/engine"
)

// TraceAction is the serialized form of one generated action, stable
// enough to diff in golden files.
type TraceAction struct {
	Type       string            `json:"type"`
	DealID     string            `json:"dealId,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// TraceSummary carries the run totals worth pinning in a golden file.
type TraceSummary struct {
	DealsCreated    int                `json:"dealsCreated"`
	DealsUpdated    int                `json:"dealsUpdated"`
	Noops           int                `json:"noops"`
	TotalDealCount  int                `json:"totalDealCount"`
	TotalDealValue  float64            `json:"totalDealValue"`
	DuplicateDeals  int                `json:"duplicateDeals"`
	IgnoredByReason map[string]float64 `json:"ignoredByReason,omitempty"`
}

// Trace is the full deterministic record of one scenario run.
type Trace struct {
	Scenario string        `json:"scenario"`
	RunID    string        `json:"runId"`
	Actions  []TraceAction `json:"actions"`
	Summary  TraceSummary  `json:"summary"`
}

// Run executes a scenario through the engine in dry-run mode with
// sequential ids and returns its trace.
func Run(s *Scenario) (*Trace, error) {
	ds, err := s.BuildDataSet()
	if err != nil {
		return nil, err
	}
	cfg, err := s.BuildConfig()
	if err != nil {
		return nil, err
	}

	eng := engine.New(cfg,
		engine.WithIDGenerator(engine.NewSequenceGenerator("fake")),
		engine.WithDryRun(true),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	result, err := eng.Run(context.Background(), ds)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	trace := &Trace{
		Scenario: s.Name,
		RunID:    result.RunID,
		Actions:  make([]TraceAction, 0, len(result.Actions)),
		Summary: TraceSummary{
			DealsCreated:    result.Summary.DealsCreated,
			DealsUpdated:    result.Summary.DealsUpdated,
			Noops:           result.Summary.Noops,
			TotalDealCount:  result.Summary.TotalDealCount,
			TotalDealValue:  result.Summary.TotalDealValue,
			DuplicateDeals:  result.Summary.DuplicateDeals,
			IgnoredByReason: result.Summary.IgnoredByReason,
		},
	}
	if len(trace.Summary.IgnoredByReason) == 0 {
		trace.Summary.IgnoredByReason = nil
	}

	for _, a := range result.Actions {
		ta := TraceAction{Type: string(a.Type), Reason: string(a.Reason)}
		if a.Deal != nil {
			ta.DealID = a.Deal.ID()
		}
		switch a.Type {
		case dealgen.ActionCreate:
			ta.Properties = a.Deal.Entity().PropertyChanges()
		case dealgen.ActionUpdate:
			ta.Properties = a.Changes
		}
		trace.Actions = append(trace.Actions, ta)
	}
	return trace, nil
}
