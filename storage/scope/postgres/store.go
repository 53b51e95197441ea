package pgscope

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS company_scope (
	user_key   text PRIMARY KEY,
	company_id text NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);`

// Store persists tenant selections in postgres.
type Store struct {
	db *sqlx.DB
}

var _ session.ScopeStore = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects from config and ensures the company_scope table exists.
func Open(conf *core.Config) (*Store, error) {
	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     url.UserPassword(conf.Database.User, conf.Database.Password),
		Host:     conf.Database.Host,
		Path:     conf.Database.Name,
		RawQuery: q.Encode(),
	}
	db, err := sqlx.Connect(conf.Database.Engine, u.String())
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	store := New(db)
	if err = store.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return errors.Wrap(err, "creating company_scope table")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, userKey string) (string, bool, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT company_id FROM company_scope WHERE user_key = $1`, userKey)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "reading tenant scope")
	}
	return id, true, nil
}

func (s *Store) Set(ctx context.Context, userKey, companyID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_scope (user_key, company_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_key) DO UPDATE SET company_id = EXCLUDED.company_id, updated_at = now()`,
		userKey, companyID,
	)
	return errors.Wrap(err, "writing tenant scope")
}

func (s *Store) Clear(ctx context.Context, userKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM company_scope WHERE user_key = $1`, userKey)
	return errors.Wrap(err, "clearing tenant scope")
}
