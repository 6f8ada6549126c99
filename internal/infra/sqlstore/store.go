// Package sqlstore implements the entity store on a SQL database through
// gorm. Postgres is used in production; SQLite backs local runs and tests.
package sqlstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("sqlstore")

// Store is the gorm-backed entity store.
type Store struct {
	db     *gorm.DB
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger

	// callTimeout bounds each store round trip, retries included. Zero disables it.
	callTimeout time.Duration
}

// Open connects to dsn. Postgres URLs and key=value DSNs select the postgres
// driver; anything else is treated as a SQLite path.
func Open(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:         newGormLogger(logger, 200*time.Millisecond),
		TranslateError: true,
	}

	if isPostgresDSN(dsn) {
		return gorm.Open(postgres.Open(dsn), gcfg)
	}

	db, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") {
		// every new connection would see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// New wraps an open connection.
func New(db *gorm.DB, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Store {
	return &Store{db: db, cb: cb, cfg: cfg, logger: logger}
}

// SetCallTimeout sets the per-call deadline.
func (s *Store) SetCallTimeout(d time.Duration) {
	s.callTimeout = d
}

// Migrate creates or updates every table and index, including the unique
// (lease_id, due_date) key on payments.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "SQL.Migrate")
	defer span.End()

	if err := s.db.WithContext(ctx).AutoMigrate(allModels...); err != nil {
		return &domain.ErrStoreUnavailable{Op: "migrate", Err: err}
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// call runs fn under the breaker with retry and maps the outcome to domain errors.
func (s *Store) call(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.cfg, func() error {
			return classify(fn(s.db.WithContext(ctx)))
		})
	})
	if err == nil {
		return nil
	}

	var (
		notFound  *domain.ErrNotFound
		malformed *domain.ErrMalformedRecord
		conflict  *domain.ErrConflict
	)
	switch {
	case errors.As(err, &notFound):
		return notFound
	case errors.As(err, &malformed):
		s.logger.Error("sqlstore: malformed record",
			zap.String("op", op),
			zap.String("collection", malformed.Collection),
			zap.String("id", malformed.ID),
			zap.String("reason", malformed.Reason),
		)
		return malformed
	case errors.As(err, &conflict):
		return conflict
	case resilience.IsBreakerRejection(err):
		s.logger.Warn("sqlstore: circuit open", zap.String("op", op))
		return &domain.ErrStoreUnavailable{Op: op, Err: &domain.ErrCircuitOpen{Service: "sql"}}
	default:
		s.logger.Warn("sqlstore: operation failed", zap.String("op", op), zap.Error(err))
		return &domain.ErrStoreUnavailable{Op: op, Err: err}
	}
}

// classify marks errors that a retry cannot fix.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case resilience.IsPermanent(err):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return resilience.Permanent(&domain.ErrConflict{Message: "record already exists"})
	case errors.Is(err, gorm.ErrInvalidData), errors.Is(err, gorm.ErrInvalidValue):
		return resilience.Permanent(err)
	default:
		return err
	}
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return resilience.Permanent(&domain.ErrNotFound{Resource: resource, ID: id})
	}
	return err
}

// record is a table model that converts to its domain entity.
type record[T any] interface {
	rowID() string
	toDomain() T
}

func toDomainList[T any, M record[T]](collection string, models []M) ([]T, error) {
	out := make([]T, 0, len(models))
	for _, m := range models {
		v := m.toDomain()
		if err := domain.CheckRecord(collection, m.rowID(), &v); err != nil {
			return nil, resilience.Permanent(err)
		}
		out = append(out, v)
	}
	return out, nil
}

// toLeases keeps every valid lease and reports the malformed ones.
func toLeases(models []leaseModel) ([]domain.Lease, []domain.LeaseFailure) {
	out := make([]domain.Lease, 0, len(models))
	skipped := []domain.LeaseFailure{}
	for _, m := range models {
		v := m.toDomain()
		if err := domain.CheckRecord("leases", m.rowID(), &v); err != nil {
			skipped = append(skipped, domain.SkippedLease(m.rowID(), err))
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}

func toDomainOne[T any, M record[T]](collection string, m M) (*T, error) {
	v := m.toDomain()
	if err := domain.CheckRecord(collection, m.rowID(), &v); err != nil {
		return nil, resilience.Permanent(err)
	}
	return &v, nil
}
