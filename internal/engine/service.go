// Package engine is the command layer over the cycle aggregate: every
// operation loads a cycle, applies exactly one aggregate operation, persists
// it together with its events, and then publishes those events.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rendis/proact/internal/cycle"
	"github.com/rendis/proact/internal/expressions"
	"github.com/rendis/proact/internal/logging"
	"github.com/rendis/proact/internal/observability"
	"github.com/rendis/proact/internal/store"
	"github.com/rendis/proact/internal/streaming"
	"github.com/rendis/proact/internal/validation"
	"github.com/rendis/proact/pkg/schema"
)

// Service is the application entry point for decision cycles.
type Service interface {
	CreateCycle(ctx context.Context, sessionID string) (*CycleView, error)
	GetCycle(ctx context.Context, cycleID string) (*CycleView, error)
	ListCycles(ctx context.Context, opts ListOptions) ([]*CycleSummary, error)
	// QueryCycle runs a jq query against the cycle document.
	QueryCycle(ctx context.Context, cycleID, query string) (any, error)

	StartComponent(ctx context.Context, cycleID string, ct schema.ComponentType) (*CycleView, error)
	// UpdateComponentOutput validates raw against the stage schema before storing it.
	UpdateComponentOutput(ctx context.Context, cycleID string, ct schema.ComponentType, raw json.RawMessage) (*CycleView, error)
	// CompleteComponent runs schema validation, stage rules and configured
	// policies on the current output, then completes the stage.
	CompleteComponent(ctx context.Context, cycleID string, ct schema.ComponentType) (*CycleView, error)
	MarkForRevision(ctx context.Context, cycleID string, ct schema.ComponentType, reason string) (*CycleView, error)
	NavigateTo(ctx context.Context, cycleID string, ct schema.ComponentType) (*CycleView, error)

	// BranchCycle forks a new cycle at branchPoint and returns it. The source is not modified.
	BranchCycle(ctx context.Context, cycleID string, branchPoint schema.ComponentType, label string) (*CycleView, error)
	CompleteCycle(ctx context.Context, cycleID string) (*CycleView, error)
	ArchiveCycle(ctx context.Context, cycleID string) (*CycleView, error)
	// ArchiveCompletedBefore archives completed cycles last updated before cutoff.
	ArchiveCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)

	Progress(ctx context.Context, cycleID string) (cycle.Progress, error)
	Events(ctx context.Context, cycleID string, since int64) ([]*store.Event, error)
	// EventsByType returns events of one type across cycles, newest first.
	EventsByType(ctx context.Context, eventType string, filter store.EventFilter) ([]*store.Event, error)
	Replay(ctx context.Context, cycleID string) (*store.ReplayState, error)
	Diagram(ctx context.Context, cycleID string, format DiagramFormat) ([]byte, error)
}

// Config holds the optional collaborators of the service.
type Config struct {
	Hub       streaming.EventHub         // nil = no live publishing
	Validator validation.OutputValidator // nil = embedded JSON Schemas
	Policies  validation.PolicyChecker   // nil = no extra completion gates
	Logger    *slog.Logger               // nil = slog.Default()
}

type serviceImpl struct {
	store     store.Store
	eventLog  *store.EventLog
	hub       streaming.EventHub
	validator validation.OutputValidator
	policies  validation.PolicyChecker
	filters   *expressions.ExprEngine
	queries   *expressions.GoJQEngine
	logger    *slog.Logger
}

// NewService creates a Service on top of s.
func NewService(s store.Store, cfg Config) (Service, error) {
	if s == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if cfg.Validator == nil {
		v, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, fmt.Errorf("engine: create output validator: %w", err)
		}
		cfg.Validator = v
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &serviceImpl{
		store:     s,
		eventLog:  store.NewEventLog(s),
		hub:       cfg.Hub,
		validator: cfg.Validator,
		policies:  cfg.Policies,
		filters:   expressions.NewExprEngine(),
		queries:   expressions.NewGoJQEngine(),
		logger:    cfg.Logger,
	}, nil
}

// --- Commands ---

func (s *serviceImpl) CreateCycle(ctx context.Context, sessionID string) (_ *CycleView, err error) {
	ctx, done := s.begin(ctx, "create_cycle", "", "")
	defer func() { done(err) }()

	if sessionID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "session id is required").WithField("session_id")
	}
	ctx = logging.WithSessionID(ctx, sessionID)

	c := cycle.New(sessionID)
	ctx = logging.WithCycleID(ctx, c.ID())
	if err := s.persist(ctx, c, true); err != nil {
		return nil, err
	}
	observability.RecordCycleCreated(false)
	return newCycleView(c), nil
}

func (s *serviceImpl) StartComponent(ctx context.Context, cycleID string, ct schema.ComponentType) (*CycleView, error) {
	return s.mutate(ctx, "start_component", cycleID, ct, func(_ context.Context, c *cycle.Cycle) error {
		return c.StartComponent(ct)
	})
}

func (s *serviceImpl) UpdateComponentOutput(ctx context.Context, cycleID string, ct schema.ComponentType, raw json.RawMessage) (*CycleView, error) {
	return s.mutate(ctx, "update_component_output", cycleID, ct, func(_ context.Context, c *cycle.Cycle) error {
		comp, err := c.Component(ct)
		if err != nil {
			return err
		}
		// Lifecycle errors take precedence over content checks.
		if c.Status() != schema.CycleStatusActive || !comp.Status.AcceptsOutput() {
			return c.UpdateComponentOutput(ct, comp.Output())
		}
		if err := s.validator.ValidateOutput(ct, raw); err != nil {
			return err
		}
		out, err := schema.DecodeOutput(ct, raw)
		if err != nil {
			return err
		}
		return c.UpdateComponentOutput(ct, out)
	})
}

func (s *serviceImpl) CompleteComponent(ctx context.Context, cycleID string, ct schema.ComponentType) (*CycleView, error) {
	return s.mutate(ctx, "complete_component", cycleID, ct, func(ctx context.Context, c *cycle.Cycle) error {
		comp, err := c.Component(ct)
		if err != nil {
			return err
		}
		// Lifecycle errors take precedence over content checks.
		if c.Status() != schema.CycleStatusActive || !comp.Status.AcceptsOutput() {
			return c.CompleteComponent(ct)
		}

		out := comp.Output()
		raw, err := json.Marshal(out)
		if err != nil {
			return schema.NewError(schema.ErrCodeExecution, "failed to serialize output").
				WithComponent(ct).WithCause(err)
		}
		if err := s.validator.ValidateOutput(ct, raw); err != nil {
			return err
		}
		if err := c.ValidateComponentCompletionRules(ct, out); err != nil {
			return err
		}
		if s.policies != nil {
			summary, err := expressions.ToData(summaryFromCycle(c))
			if err != nil {
				return schema.NewError(schema.ErrCodeExecution, "failed to build policy data").WithCause(err)
			}
			if err := s.policies.CheckCompletion(ctx, ct, out, summary); err != nil {
				return err
			}
		}
		return c.CompleteComponent(ct)
	})
}

func (s *serviceImpl) MarkForRevision(ctx context.Context, cycleID string, ct schema.ComponentType, reason string) (*CycleView, error) {
	return s.mutate(ctx, "mark_for_revision", cycleID, ct, func(_ context.Context, c *cycle.Cycle) error {
		return c.MarkComponentForRevision(ct, reason)
	})
}

func (s *serviceImpl) NavigateTo(ctx context.Context, cycleID string, ct schema.ComponentType) (*CycleView, error) {
	return s.mutate(ctx, "navigate", cycleID, ct, func(_ context.Context, c *cycle.Cycle) error {
		return c.NavigateTo(ct)
	})
}

func (s *serviceImpl) CompleteCycle(ctx context.Context, cycleID string) (*CycleView, error) {
	return s.mutate(ctx, "complete_cycle", cycleID, "", func(_ context.Context, c *cycle.Cycle) error {
		return c.Complete()
	})
}

func (s *serviceImpl) ArchiveCycle(ctx context.Context, cycleID string) (*CycleView, error) {
	return s.mutate(ctx, "archive_cycle", cycleID, "", func(_ context.Context, c *cycle.Cycle) error {
		return c.Archive()
	})
}

func (s *serviceImpl) BranchCycle(ctx context.Context, cycleID string, branchPoint schema.ComponentType, label string) (_ *CycleView, err error) {
	ctx, done := s.begin(ctx, "branch_cycle", cycleID, branchPoint)
	defer func() { done(err) }()

	source, err := s.load(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	branch, err := source.BranchAt(branchPoint, label)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithCycleID(logging.WithSessionID(ctx, branch.SessionID()), branch.ID())
	if err := s.persist(ctx, branch, true); err != nil {
		return nil, err
	}
	observability.RecordCycleCreated(true)
	s.logger.InfoContext(ctx, "cycle branched", "parent_cycle_id", cycleID, "label", branch.Branch().Label)
	return newCycleView(branch), nil
}

// ArchiveCompletedBefore archives each matching cycle through the aggregate.
// Cycles changed concurrently (CONFLICT) are skipped; other failures are
// collected and returned together with the number archived.
func (s *serviceImpl) ArchiveCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	completed := schema.CycleStatusCompleted
	recs, err := s.store.ListCycles(ctx, store.CycleFilter{Status: &completed, UpdatedBefore: &cutoff})
	if err != nil {
		return 0, err
	}

	archived := 0
	var errs []error
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.ArchiveCycle(ctx, rec.ID); err != nil {
			if schema.HasCode(err, schema.ErrCodeConflict) || schema.HasCode(err, schema.ErrCodeInvalidTransition) {
				continue
			}
			errs = append(errs, fmt.Errorf("archive %s: %w", rec.ID, err))
			continue
		}
		archived++
	}
	observability.RecordRetentionArchived(archived)
	return archived, errors.Join(errs...)
}

// --- Queries ---

func (s *serviceImpl) GetCycle(ctx context.Context, cycleID string) (*CycleView, error) {
	c, err := s.load(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	return newCycleView(c), nil
}

func (s *serviceImpl) ListCycles(ctx context.Context, opts ListOptions) ([]*CycleSummary, error) {
	filter := store.CycleFilter{
		SessionID:     opts.SessionID,
		ParentCycleID: opts.ParentCycleID,
	}
	if opts.Status != "" {
		if !opts.Status.IsValid() {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid cycle status %q", opts.Status).WithField("status")
		}
		status := opts.Status
		filter.Status = &status
	}
	// Paging after the filter needs the unpaged set.
	sqlPaged := opts.Where == "" && opts.Limit > 0
	if sqlPaged {
		filter.Limit, filter.Offset = opts.Limit, opts.Offset
	}

	recs, err := s.store.ListCycles(ctx, filter)
	if err != nil {
		return nil, err
	}
	summaries := make([]*CycleSummary, 0, len(recs))
	for _, rec := range recs {
		summaries = append(summaries, summaryFromRecord(rec))
	}
	if sqlPaged {
		return summaries, nil
	}
	if opts.Where == "" {
		return page(summaries, opts.Offset, opts.Limit), nil
	}

	items := make([]map[string]any, 0, len(summaries))
	for _, sum := range summaries {
		data, err := expressions.ToData(sum)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "failed to build filter data").WithCause(err)
		}
		items = append(items, data)
	}
	idx, err := s.filters.Match(ctx, opts.Where, items)
	if err != nil {
		return nil, err
	}
	matched := make([]*CycleSummary, 0, len(idx))
	for _, i := range idx {
		matched = append(matched, summaries[i])
	}
	return page(matched, opts.Offset, opts.Limit), nil
}

func (s *serviceImpl) QueryCycle(ctx context.Context, cycleID, query string) (any, error) {
	view, err := s.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	data, err := expressions.ToData(view)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "failed to build query document").WithCause(err)
	}
	return s.queries.Evaluate(ctx, query, data)
}

func (s *serviceImpl) Progress(ctx context.Context, cycleID string) (cycle.Progress, error) {
	rec, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return cycle.Progress{}, err
	}
	return summaryFromRecord(rec).Progress, nil
}

func (s *serviceImpl) Events(ctx context.Context, cycleID string, since int64) ([]*store.Event, error) {
	if _, err := s.store.GetCycle(ctx, cycleID); err != nil {
		return nil, err
	}
	return s.eventLog.GetEvents(ctx, cycleID, since)
}

func (s *serviceImpl) EventsByType(ctx context.Context, eventType string, filter store.EventFilter) ([]*store.Event, error) {
	if !schema.IsEventType(eventType) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown event type %q", eventType).WithField("event_type")
	}
	if filter.Component != "" && !filter.Component.IsValid() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown component type %q", filter.Component).WithField("component")
	}
	return s.store.GetEventsByType(ctx, eventType, filter)
}

func (s *serviceImpl) Replay(ctx context.Context, cycleID string) (*store.ReplayState, error) {
	if _, err := s.store.GetCycle(ctx, cycleID); err != nil {
		return nil, err
	}
	return s.eventLog.ReplayEvents(ctx, cycleID)
}

// --- Plumbing ---

// mutate runs one aggregate operation inside the load, save, publish sequence.
func (s *serviceImpl) mutate(ctx context.Context, op, cycleID string, ct schema.ComponentType,
	apply func(context.Context, *cycle.Cycle) error) (_ *CycleView, err error) {
	ctx, done := s.begin(ctx, op, cycleID, ct)
	defer func() { done(err) }()

	c, err := s.load(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithSessionID(ctx, c.SessionID())

	if err := apply(ctx, c); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, c, false); err != nil {
		return nil, err
	}
	return newCycleView(c), nil
}

func (s *serviceImpl) load(ctx context.Context, cycleID string) (*cycle.Cycle, error) {
	if cycleID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "cycle id is required").WithField("cycle_id")
	}
	rec, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// persist saves c with its pending events, then publishes them. Creation and
// update are distinct; updates are checked against the loaded version.
func (s *serviceImpl) persist(ctx context.Context, c *cycle.Cycle, create bool) error {
	rec, err := toRecord(c)
	if err != nil {
		return schema.NewError(schema.ErrCodeExecution, "failed to serialize cycle").WithCause(err)
	}
	events, err := toStoreEvents(c.PendingEvents())
	if err != nil {
		return schema.NewError(schema.ErrCodeExecution, "failed to serialize events").WithCause(err)
	}

	if create {
		err = s.store.CreateCycle(ctx, rec, events)
	} else {
		err = s.store.UpdateCycle(ctx, rec, c.Version(), events)
	}
	if err != nil {
		return err
	}
	c.DrainEvents()
	c.MarkPersisted(rec.Version)

	s.publish(ctx, c.SessionID(), events)
	return nil
}

func (s *serviceImpl) publish(ctx context.Context, sessionID string, events []*store.Event) {
	for _, e := range events {
		recordTransition(e)
		if s.hub == nil {
			continue
		}
		var payload any
		if len(e.Payload) > 0 {
			payload = e.Payload
		}
		err := s.hub.Publish(ctx, streaming.StreamEvent{
			CycleID:   e.CycleID,
			SessionID: sessionID,
			Component: string(e.Component),
			EventType: e.Type,
			Sequence:  e.Sequence,
			Payload:   payload,
			Timestamp: e.Timestamp,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "event publish failed", "event_type", e.Type, "sequence", e.Sequence, "error", err)
		}
	}
}

func recordTransition(e *store.Event) {
	switch e.Type {
	case schema.EventComponentStarted:
		observability.RecordTransition(string(e.Component), string(schema.ComponentStatusInProgress))
	case schema.EventComponentCompleted:
		observability.RecordTransition(string(e.Component), string(schema.ComponentStatusComplete))
	case schema.EventComponentMarkedForRevision:
		observability.RecordTransition(string(e.Component), string(schema.ComponentStatusNeedsRevision))
	}
}

// begin opens a span and enriches ctx with correlation values. The returned
// func ends the span and records the outcome in metrics and logs.
func (s *serviceImpl) begin(ctx context.Context, op, cycleID string, ct schema.ComponentType) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{attribute.String("proact.operation", op)}
	if cycleID != "" {
		ctx = logging.WithCycleID(ctx, cycleID)
		attrs = append(attrs, attribute.String("proact.cycle_id", cycleID))
	}
	if ct != "" {
		ctx = logging.WithComponent(ctx, string(ct))
		attrs = append(attrs, attribute.String("proact.component", string(ct)))
	}
	ctx, span := observability.Tracer().Start(ctx, "proact."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		defer span.End()
		status := outcome(err)
		observability.RecordOperation(op, status, time.Since(start))

		switch status {
		case observability.StatusSuccess:
			s.logger.InfoContext(ctx, "cycle operation applied", "operation", op)
		case observability.StatusRejected:
			pe, _ := schema.AsProactError(err)
			span.SetAttributes(attribute.String("proact.error_code", pe.Code))
			s.logger.WarnContext(ctx, "cycle operation rejected", "operation", op, "code", pe.Code, "error", err)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.ErrorContext(ctx, "cycle operation failed", "operation", op, "error", err)
		}
	}
}

// outcome classifies an error: domain refusals are "rejected", infrastructure
// failures are "error".
func outcome(err error) string {
	if err == nil {
		return observability.StatusSuccess
	}
	pe, ok := schema.AsProactError(err)
	if !ok {
		return observability.StatusError
	}
	switch pe.Code {
	case schema.ErrCodeStore, schema.ErrCodeExecution:
		return observability.StatusError
	}
	return observability.StatusRejected
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ Service = (*serviceImpl)(nil)
