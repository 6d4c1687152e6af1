// Package core implements the engagement services: token issuance and
// validation, the push-update reconciler, guarded project operations and the
// reactive project triggers.
package core

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"engagement/internal/docstore"
	"engagement/internal/logging"
	"engagement/pkg/domain"
)

// Service is request scoped: it holds configuration and collaborators but no
// per-request state, so one instance serves concurrent callers.
type Service struct {
	store     domain.DocumentStore
	registry  *domain.UpdateRegistry
	rules     *RulesEngine
	logger    logging.Logger
	metrics   MetricsRecorder
	tracer    Tracer
	clock     Clock
	entropy   io.Reader
	batchSize int
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the logger used for degraded records and failures.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the per-operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the time source used for token creation dates.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithEntropy overrides the random source used for token secrets.
func WithEntropy(r io.Reader) Option {
	return func(s *Service) {
		if r != nil {
			s.entropy = r
		}
	}
}

// WithUpdateRegistry replaces the built-in update variant table.
func WithUpdateRegistry(r *domain.UpdateRegistry) Option {
	return func(s *Service) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithRulesEngine replaces the access rules applied to user-facing operations.
func WithRulesEngine(e *RulesEngine) Option {
	return func(s *Service) {
		if e != nil {
			s.rules = e
		}
	}
}

// WithCleanupBatchSize bounds the pages used by cascade and token deletes.
func WithCleanupBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewService constructs a service over store.
func NewService(store domain.DocumentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		registry:  domain.DefaultUpdateRegistry(),
		logger:    logging.Nop(),
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		clock:     systemClock(),
		entropy:   rand.Reader,
		batchSize: docstore.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rules == nil {
		s.rules = NewDefaultRulesEngine(s.registry)
	}
	return s
}

// Store returns the underlying document store.
func (s *Service) Store() domain.DocumentStore { return s.store }

// Registry returns the update variant table in use.
func (s *Service) Registry() *domain.UpdateRegistry { return s.registry }

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	if err != nil {
		s.logger.Debug("operation failed", "operation", op, "error", err)
	}
	return err
}

// loadProject reads and decodes a project; ok is false when it does not exist.
func (s *Service) loadProject(ctx context.Context, id string) (*domain.Project, bool, error) {
	if id == "" {
		return nil, false, nil
	}
	doc, ok, err := s.store.Get(ctx, domain.JoinPath(CollectionProjects, id))
	if err != nil || !ok {
		return nil, false, err
	}
	p := domain.ProjectFromStorageRecord(doc.ID, doc.Data)
	if p.Degraded() {
		s.logger.Warn("degraded project record", "project", doc.ID, "error", p.Err())
	}
	return p, true, nil
}

func (s *Service) saveProject(ctx context.Context, p *domain.Project) error {
	record, err := p.ToStorageRecord()
	if err != nil {
		return err
	}
	path, err := p.Path()
	if err != nil {
		return err
	}
	return s.store.Set(ctx, path, record)
}

// loadUpdate decodes a stored update through the registry and logs degradation.
func (s *Service) loadUpdate(doc domain.Document, project *domain.Project) *domain.Update {
	u := s.registry.FromStorageRecord(doc.ID, doc.Data)
	u.SetParent(project)
	if u.Degraded() {
		s.logger.Warn("degraded update record", "path", doc.Path, "error", u.Err())
	}
	return u
}

func updatesCollection(projectID string) string {
	return domain.JoinPath(CollectionProjects, projectID, CollectionUpdates)
}

// deletePaths removes paths in pages of the configured batch size.
func (s *Service) deletePaths(ctx context.Context, paths []string) error {
	for start := 0; start < len(paths); start += s.batchSize {
		end := start + s.batchSize
		if end > len(paths) {
			end = len(paths)
		}
		if err := s.store.DeleteBatch(ctx, paths[start:end]); err != nil {
			return err
		}
	}
	return nil
}
