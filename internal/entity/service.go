package entity

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,AuditPublisher

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"caminomanager/internal/platform/metrics"
	id "caminomanager/pkg/domain"
	dErrors "caminomanager/pkg/domain-errors"
	audit "caminomanager/pkg/platform/audit"
	"caminomanager/pkg/platform/sentinel"
	"caminomanager/pkg/platform/tx"
	"caminomanager/pkg/requestcontext"
)

// Store persists records of every entity.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, entity string, recordID id.RecordID) error
	Get(ctx context.Context, entity string, recordID id.RecordID) (*Record, error)
	List(ctx context.Context, q ListQuery) ([]*Record, int, error)
}

// AuditPublisher records record mutations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service implements the entity operations behind every admin table.
type Service struct {
	registry *Registry
	store    Store
	tx       tx.Manager
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("caminomanager/entity") }
}

func NewService(registry *Registry, store Store, txManager tx.Manager, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		store:    store,
		tx:       txManager,
		tracer:   otel.Tracer("caminomanager/entity"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Config returns the configuration of an entity, or a not-found error.
func (s *Service) Config(name string) (Config, error) {
	cfg, ok := s.registry.Lookup(name)
	if !ok {
		return Config{}, dErrors.New(dErrors.CodeNotFound, "unknown entity "+name)
	}
	return cfg, nil
}

// List returns one page of records. Page size defaults to the entity's and
// is capped at MaxPageSize.
func (s *Service) List(ctx context.Context, name string, q Query) (*Page, error) {
	cfg, err := s.Config(name)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "entity.list", trace.WithAttributes(attribute.String("entity", name)))
	defer span.End()

	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = cfg.PageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	// past this page the offset no longer fits in an int
	if maxPage := math.MaxInt / q.PageSize; q.Page > maxPage {
		q.Page = maxPage
	}
	sort := q.Sort
	if sort == "" {
		sort = cfg.DefaultSort
	}

	lq := ListQuery{
		Entity: name,
		Offset: (q.Page - 1) * q.PageSize,
		Limit:  q.PageSize,
		Search: strings.ToLower(strings.TrimSpace(q.Search)),
	}
	if sort != "" {
		field, ok := cfg.Field(sortField(sort))
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "cannot sort by "+sortField(sort))
		}
		lq.SortBy, lq.SortType, lq.Desc = field.Name, field.Type, strings.HasPrefix(sort, "-")
	}

	items, total, err := s.store.List(ctx, lq)
	if err != nil {
		span.SetStatus(codes.Error, "list failed")
		return nil, translate(err, "failed to list records")
	}
	return &Page{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: (total + q.PageSize - 1) / q.PageSize,
	}, nil
}

func (s *Service) Get(ctx context.Context, name string, recordID id.RecordID) (*Record, error) {
	if _, err := s.Config(name); err != nil {
		return nil, err
	}
	rec, err := s.store.Get(ctx, name, recordID)
	if err != nil {
		return nil, translate(err, "failed to load record")
	}
	return rec, nil
}

// Create validates data and inserts a record together with its audit event.
func (s *Service) Create(ctx context.Context, name string, data map[string]any) (*Record, error) {
	cfg, err := s.Config(name)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "entity.create", trace.WithAttributes(attribute.String("entity", name)))
	defer span.End()

	clean, err := Validate(cfg, data)
	if err != nil {
		return nil, translate(err, "invalid record")
	}

	now := requestcontext.Now(ctx)
	rec := &Record{
		ID:        id.NewRecordID(),
		Entity:    name,
		Data:      clean,
		Search:    SearchText(cfg, clean),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.checkRefs(ctx, cfg, clean); err != nil {
			return err
		}
		if err := s.store.Insert(ctx, rec); err != nil {
			return err
		}
		return s.emit(ctx, audit.ActionRecordCreated, name, rec.ID)
	})
	if err != nil {
		span.SetStatus(codes.Error, "create failed")
		return nil, translate(err, "failed to create record")
	}

	s.metrics.IncEntityWrite(name, "create")
	s.logger.InfoContext(ctx, "record created", "entity", name, "record_id", rec.ID.String())
	return rec, nil
}

// Update replaces the data of an existing record.
func (s *Service) Update(ctx context.Context, name string, recordID id.RecordID, data map[string]any) (*Record, error) {
	cfg, err := s.Config(name)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "entity.update", trace.WithAttributes(attribute.String("entity", name)))
	defer span.End()

	clean, err := Validate(cfg, data)
	if err != nil {
		return nil, translate(err, "invalid record")
	}

	var rec *Record
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		existing, err := s.store.Get(ctx, name, recordID)
		if err != nil {
			return err
		}
		if err := s.checkRefs(ctx, cfg, clean); err != nil {
			return err
		}
		existing.Data = clean
		existing.Search = SearchText(cfg, clean)
		existing.UpdatedAt = requestcontext.Now(ctx)
		if err := s.store.Update(ctx, existing); err != nil {
			return err
		}
		rec = existing
		return s.emit(ctx, audit.ActionRecordUpdated, name, recordID)
	})
	if err != nil {
		span.SetStatus(codes.Error, "update failed")
		return nil, translate(err, "failed to update record")
	}

	s.metrics.IncEntityWrite(name, "update")
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, name string, recordID id.RecordID) error {
	if _, err := s.Config(name); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "entity.delete", trace.WithAttributes(attribute.String("entity", name)))
	defer span.End()

	err := s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, name, recordID); err != nil {
			return err
		}
		return s.emit(ctx, audit.ActionRecordDeleted, name, recordID)
	})
	if err != nil {
		span.SetStatus(codes.Error, "delete failed")
		return translate(err, "failed to delete record")
	}

	s.metrics.IncEntityWrite(name, "delete")
	s.logger.InfoContext(ctx, "record deleted", "entity", name, "record_id", recordID.String())
	return nil
}

// checkRefs verifies that every reference points at an existing record.
func (s *Service) checkRefs(ctx context.Context, cfg Config, data map[string]any) error {
	problems := map[string]string{}
	for _, f := range cfg.Fields {
		if f.Type != FieldRef {
			continue
		}
		raw, ok := data[f.Name].(string)
		if !ok {
			continue
		}
		refID, err := id.ParseRecordID(raw)
		if err != nil {
			problems[f.Name] = "must reference a " + f.Ref + " id"
			continue
		}
		if _, err := s.store.Get(ctx, f.Ref, refID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				problems[f.Name] = "references a missing " + f.Ref + " record"
				continue
			}
			return err
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, name string, recordID id.RecordID) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.Emit(ctx, audit.Event{
		Action:   action,
		UserID:   requestcontext.UserID(ctx),
		Entity:   name,
		RecordID: recordID,
	})
}

func translate(err error, msg string) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, verr.Error())
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "record not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
