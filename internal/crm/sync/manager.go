// Package sync fans lead writes out to every configured CRM backend. Each
// backend runs in its own goroutine under its own deadline, so one slow or
// failing system never blocks or fails the others.
package sync

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/metrics"
	"lead-engine/internal/common/observability"
	"lead-engine/internal/crm"
	"lead-engine/internal/models"
)

const (
	OpCreate = "create"
	OpUpdate = "update"

	DefaultTimeout = 10 * time.Second
)

type Manager struct {
	adapters []crm.Adapter
	timeout  time.Duration
	log      logger.Logger
	obs      *observability.Observability
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Manager)

func WithObservability(obs *observability.Observability) Option {
	return func(m *Manager) { m.obs = obs }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager rejects two adapters sharing a name, since results are keyed by it.
func NewManager(adapters []crm.Adapter, timeout time.Duration, log logger.Logger, opts ...Option) (*Manager, error) {
	seen := make(map[string]bool, len(adapters))
	for _, a := range adapters {
		if a == nil {
			return nil, errors.NewConfigurationError("nil CRM adapter")
		}
		name := a.Name()
		if name == "" {
			return nil, errors.NewConfigurationError("CRM adapter with empty name")
		}
		if seen[name] {
			return nil, errors.NewConfigurationError(fmt.Sprintf("duplicate CRM adapter name %q", name))
		}
		seen[name] = true
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	m := &Manager{
		adapters: append([]crm.Adapter(nil), adapters...),
		timeout:  timeout,
		log:      log,
		tracer:   observability.Tracer("lead-engine/crm/sync"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Backends lists the configured adapter names in configuration order.
func (m *Manager) Backends() []string {
	names := make([]string, len(m.adapters))
	for i, a := range m.adapters {
		names[i] = a.Name()
	}
	return names
}

func (m *Manager) Timeout() time.Duration { return m.timeout }

// SyncCreate creates the lead in every backend. The returned map always has one
// entry per configured backend.
func (m *Manager) SyncCreate(ctx context.Context, lead *models.Lead) map[string]models.CRMSyncResult {
	record := crm.RecordFromLead(lead)
	return m.fanOut(ctx, OpCreate, func(ctx context.Context, a crm.Adapter) (string, bool, error) {
		id, err := a.CreateRecord(ctx, record)
		return id, err == nil, err
	}, nil)
}

// SyncCreateMissing is SyncCreate restricted to backends with no entry in
// lead.ExternalIDs. Backends that already hold the lead report success with
// their known id and are not called.
func (m *Manager) SyncCreateMissing(ctx context.Context, lead *models.Lead) map[string]models.CRMSyncResult {
	record := crm.RecordFromLead(lead)
	skip := func(name string) (outcome, bool) {
		if id := lead.ExternalIDs[name]; id != "" {
			return outcome{externalID: id, ok: true}, true
		}
		return outcome{}, false
	}

	return m.fanOut(ctx, OpCreate, func(ctx context.Context, a crm.Adapter) (string, bool, error) {
		id, err := a.CreateRecord(ctx, record)
		return id, err == nil, err
	}, skip)
}

// SyncUpdate pushes updates to every backend and reports per-backend success.
// A backend with no entry in externalIDs records false without being called.
func (m *Manager) SyncUpdate(ctx context.Context, externalIDs map[string]string, updates crm.Fields) map[string]bool {
	results := m.SyncUpdateResults(ctx, externalIDs, updates)
	out := make(map[string]bool, len(results))
	for name, r := range results {
		out[name] = r.Success
	}
	return out
}

// SyncUpdateResults is SyncUpdate with the full per-backend detail.
func (m *Manager) SyncUpdateResults(ctx context.Context, externalIDs map[string]string, updates crm.Fields) map[string]models.CRMSyncResult {
	skip := func(name string) (outcome, bool) {
		if externalIDs[name] == "" {
			return outcome{err: errors.NewCRMNotFoundError(name, "")}, true
		}
		return outcome{}, false
	}

	return m.fanOut(ctx, OpUpdate, func(ctx context.Context, a crm.Adapter) (string, bool, error) {
		id := externalIDs[a.Name()]
		ok, err := a.UpdateRecord(ctx, id, updates)
		return id, ok, err
	}, skip)
}

type callFunc func(ctx context.Context, a crm.Adapter) (string, bool, error)

type outcome struct {
	externalID string
	ok         bool
	err        error
}

func (m *Manager) fanOut(ctx context.Context, op string, call callFunc, skip func(string) (outcome, bool)) map[string]models.CRMSyncResult {
	results := make([]models.CRMSyncResult, len(m.adapters))

	// Goroutines never return an error so that one backend cannot cancel the rest.
	var g errgroup.Group
	for i, a := range m.adapters {
		g.Go(func() error {
			if skip != nil {
				if o, skipped := skip(a.Name()); skipped {
					results[i] = m.result(a.Name(), o)
					metrics.CRMSyncTotal.WithLabelValues(a.Name(), op, "skipped").Inc()
					return nil
				}
			}
			results[i] = m.invoke(ctx, op, a, call)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]models.CRMSyncResult, len(results))
	for _, r := range results {
		out[r.Backend] = r
	}
	return out
}

func (m *Manager) invoke(parent context.Context, op string, a crm.Adapter, call callFunc) models.CRMSyncResult {
	name := a.Name()
	ctx, span := m.tracer.Start(parent, "crm."+op, trace.WithAttributes(
		attribute.String("crm.backend", name),
		attribute.String("crm.operation", op),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.NewInternalError(fmt.Errorf("adapter %s panicked: %v", name, r))}
			}
		}()
		id, ok, err := call(ctx, a)
		done <- outcome{externalID: id, ok: ok, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		res = outcome{err: errors.NewCRMTimeoutError(name, ctx.Err())}
	}
	elapsed := time.Since(start)

	r := m.result(name, res)

	outcomeLabel := "success"
	if !r.Success {
		outcomeLabel = "failure"
		if r.ErrorCode == string(errors.ErrCodeCRMTimeout) {
			outcomeLabel = "timeout"
		}
		span.SetStatus(codes.Error, r.ErrorMessage)
		m.log.Warn("CRM sync failed", map[string]interface{}{
			"backend":   name,
			"operation": op,
			"errorCode": r.ErrorCode,
			"error":     r.ErrorMessage,
			"duration":  elapsed.String(),
		})
	} else {
		span.SetAttributes(attribute.String("crm.external_id", r.ExternalID))
		m.log.Debug("CRM sync succeeded", map[string]interface{}{
			"backend":    name,
			"operation":  op,
			"externalId": r.ExternalID,
			"duration":   elapsed.String(),
		})
	}

	metrics.CRMSyncTotal.WithLabelValues(name, op, outcomeLabel).Inc()
	metrics.CRMSyncDuration.WithLabelValues(name, op).Observe(elapsed.Seconds())
	m.obs.RecordSyncResult(parent, name, op, r.Success)

	return r
}

func (m *Manager) result(name string, o outcome) models.CRMSyncResult {
	r := models.CRMSyncResult{
		Backend:   name,
		Timestamp: m.now().UTC(),
	}
	switch {
	case o.err != nil:
		std := errors.Normalize(o.err)
		r.Err = o.err
		r.ErrorCode = string(std.Code)
		r.ErrorMessage = std.Error()
	case !o.ok:
		r.ErrorCode = string(errors.ErrCodeCRMSchema)
		r.ErrorMessage = fmt.Sprintf("CRM '%s' did not apply the write", name)
	default:
		r.Success = true
		r.ExternalID = o.externalID
	}
	return r
}
