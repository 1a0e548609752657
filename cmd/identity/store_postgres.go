package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"credd/cmd/internal/autherr"
)

// DefaultSchema is the schema created by the embedded migrations.
const DefaultSchema = "credd"

// DB is the subset of *pgxpool.Pool used by PostgresStore.
// pgxmock.PgxPoolIface satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store over PostgreSQL.
//
// The pool is owned by the caller; the store never closes it. The table
// identifier is quoted with pgx.Identifier, and the unique index on identity
// is the backstop for concurrent registrations.
type PostgresStore struct {
	db     DB
	schema string
	table  string
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the credentials table (default "credd").
// Non-default schemas must be provisioned by the operator.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db DB, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{db: db, schema: DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.db == nil {
		return nil, errors.New("identity: nil pool")
	}
	st.table = pgx.Identifier{st.schema, "credentials"}.Sanitize()
	return st, nil
}

const recordColumns = `id, identity, secret_hash, display_name, created_at, updated_at`

// Create inserts rec.
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	const op = "identity.PostgresStore.Create"

	if err := ctx.Err(); err != nil {
		return autherr.FromStorage(op, err)
	}
	if rec.ID == "" || rec.Identity == "" || strings.TrimSpace(rec.SecretHash) == "" {
		return autherr.E(op, autherr.ErrInvalidInput, "id, identity and secret hash are required")
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO `+s.table+` (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Identity, rec.SecretHash, rec.DisplayName, rec.CreatedAt, rec.UpdatedAt,
	)
	return pgClassify(op, err)
}

// GetByIdentity returns the record for identity or ErrNotFound.
func (s *PostgresStore) GetByIdentity(ctx context.Context, identity string) (Record, error) {
	const op = "identity.PostgresStore.GetByIdentity"

	if err := ctx.Err(); err != nil {
		return Record{}, autherr.FromStorage(op, err)
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+recordColumns+`
		   FROM `+s.table+`
		  WHERE identity = $1`,
		identity,
	)
	return scanRecord(op, row)
}

// UpdateSecret replaces the stored hash.
func (s *PostgresStore) UpdateSecret(ctx context.Context, id, secretHash string, now time.Time) (Record, error) {
	const op = "identity.PostgresStore.UpdateSecret"

	if err := ctx.Err(); err != nil {
		return Record{}, autherr.FromStorage(op, err)
	}
	if strings.TrimSpace(secretHash) == "" {
		return Record{}, autherr.E(op, autherr.ErrInvalidInput, "secret hash is required")
	}

	row := s.db.QueryRow(ctx,
		`UPDATE `+s.table+`
		    SET secret_hash = $2,
		        updated_at = $3
		  WHERE id = $1
		  RETURNING `+recordColumns,
		id, secretHash, now,
	)
	return scanRecord(op, row)
}

// UpdateProfile applies upd. The statement never references secret_hash.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, now time.Time) (Record, error) {
	const op = "identity.PostgresStore.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return Record{}, autherr.FromStorage(op, err)
	}

	row := s.db.QueryRow(ctx,
		`UPDATE `+s.table+`
		    SET display_name = CASE WHEN $2 THEN NULLIF($3, '') ELSE display_name END,
		        updated_at = $4
		  WHERE id = $1
		  RETURNING `+recordColumns,
		id, upd.DisplayName != nil, derefOrEmpty(upd.DisplayName), now,
	)
	return scanRecord(op, row)
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return pgClassify("identity.PostgresStore.Ping", s.db.Ping(ctx))
}

func scanRecord(op string, row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Identity, &r.SecretHash, &r.DisplayName, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Record{}, pgClassify(op, err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

// pgClassify maps driver errors to the taxonomy. Raw driver errors never
// leave this package.
func pgClassify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return autherr.E(op, autherr.ErrNotFound, "")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return autherr.Wrap(op, autherr.ErrDuplicateIdentity, err)
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return autherr.Wrap(op, autherr.ErrInvalidInput, err)
		case pgerrcode.QueryCanceled, pgerrcode.LockNotAvailable:
			return autherr.Wrap(op, autherr.ErrTimeout, err)
		}
	}
	return autherr.FromStorage(op, err)
}

func derefOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
