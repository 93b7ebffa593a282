// Package engine orchestrates one reconciliation run: import a data set
// into the in-memory CRM model, feed the event stream to the action
// generator, apply creates, upload or fake-populate ids, persist the
// action log and report a summary.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/SoftComply/marketing-automation/internal/crm"
	"github.com/SoftComply/marketing-automation/internal/dataset"
	"github.com/SoftComply/marketing-automation/internal/dealgen"
)

// Config is the engine's business configuration.
type Config struct {
	CRM   crm.Config     `yaml:"crm"`
	Deals dealgen.Config `yaml:"deals"`
}

// Engine runs reconciliation passes. Construct once; each Run builds a
// fresh entity set.
type Engine struct {
	cfg    Config
	store  *dataset.Store
	api    crm.EntityAPI
	ids    crm.IDGenerator
	logger *slog.Logger
	dryRun bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore enables action-log persistence.
func WithStore(s *dataset.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithAPI wires the remote CRM write surface. Without it the engine
// runs offline and populates placeholder ids instead of uploading.
func WithAPI(api crm.EntityAPI) Option {
	return func(e *Engine) { e.api = api }
}

// WithIDGenerator overrides the id source (tests use FixedGenerator).
func WithIDGenerator(gen crm.IDGenerator) Option {
	return func(e *Engine) { e.ids = gen }
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithDryRun computes everything but skips the uploader.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) { e.dryRun = dryRun }
}

// New builds an engine.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunResult is everything one run produced.
type RunResult struct {
	RunID   string
	CRM     *crm.CRM
	Actions []dealgen.Action
	Summary *Summary
}

// Run executes one full reconciliation pass over a data set.
//
// Error taxonomy: configuration defects and the duplicate-registration
// invariant abort the run as typed RunErrors; single-record data
// anomalies are logged and skipped inside the pipeline.
func (e *Engine) Run(ctx context.Context, ds *dataset.DataSet) (*RunResult, error) {
	runID := e.ids.Generate()
	logger := e.logger.With("run", runID)

	c, err := crm.New(e.cfg.CRM, logger)
	if err != nil {
		return nil, NewConfigError(err)
	}
	if err := c.ImportData(ds); err != nil {
		return nil, NewConfigError(err)
	}
	logger.Info("imported data set",
		"deals", len(c.Deals.All()),
		"contacts", len(c.Contacts.All()),
		"companies", len(c.Companies.All()),
		"licenses", len(ds.Licenses),
		"transactions", len(ds.Transactions),
		"events", len(ds.Events))

	tally := NewTally()
	gen := dealgen.NewGenerator(c.Deals, e.cfg.Deals, tally.Ignore, logger)
	events := resolveEvents(ds, logger)
	actions, err := gen.Generate(recordHistory(ds), events)
	if err != nil {
		if errors.Is(err, dealgen.ErrUnknownEventType) {
			return nil, NewConfigError(err)
		}
		return nil, NewDuplicateConflictError(runID, err)
	}

	// Materialize creates so the new deals join the collection and the
	// upload/export path sees them.
	for i := range actions {
		if actions[i].Type == dealgen.ActionCreate {
			actions[i].Deal = c.Deals.Create(actions[i].Properties)
		}
	}

	if e.api != nil && !e.dryRun {
		uploader := crm.NewUploader(e.api, logger)
		if err := uploader.SyncUp(ctx, c); err != nil {
			return nil, NewUploadError(runID, err)
		}
	} else {
		c.PopulateFakeIDs(e.ids)
	}

	if e.store != nil {
		if err := e.persistActions(ctx, runID, actions); err != nil {
			return nil, err
		}
	}

	summary := buildSummary(runID, c, actions, tally)
	summary.Log(logger)

	return &RunResult{RunID: runID, CRM: c, Actions: actions, Summary: summary}, nil
}

func (e *Engine) persistActions(ctx context.Context, runID string, actions []dealgen.Action) error {
	for seq, a := range actions {
		rec := dataset.ActionRecord{
			RunID:  runID,
			Seq:    seq,
			Type:   string(a.Type),
			Reason: string(a.Reason),
		}
		if a.Deal != nil {
			rec.DealID = a.Deal.ID()
		}
		switch a.Type {
		case dealgen.ActionCreate:
			rec.Properties = a.Deal.Entity().PropertyChanges()
		case dealgen.ActionUpdate:
			rec.Properties = a.Changes
		}
		if err := e.store.WriteAction(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
