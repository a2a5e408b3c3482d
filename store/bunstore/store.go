// Package bunstore backs the persistent storage tier with a bun-managed
// SQLite table. Native and CLI hosts use it to persist the identity
// provider's mirror records across restarts.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-authsync"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Record is one opaque blob in the persistent tier.
type Record struct {
	bun.BaseModel `bun:"table:auth_mirror,alias:amr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Key           string     `bun:"key,notnull,unique" json:"key,omitempty"`
	Value         string     `bun:"value,notnull" json:"value,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Store implements authsync.KeyValueStore over bun. The generic record
// repository is held, not embedded: its CRUD signatures collide with the
// key/value method set.
type Store struct {
	repo repository.Repository[*Record]
	db   *bun.DB
}

var _ authsync.KeyValueStore = (*Store)(nil)

// New wraps the database in a Store.
func New(db *bun.DB) *Store {
	repo := repository.NewRepository[*Record](db, repository.ModelHandlers[*Record]{
		NewRecord: func() *Record { return &Record{} },
		GetID: func(r *Record) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Record, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	return &Store{repo: repo, db: db}
}

// Repo exposes the record-level repository for hosts that need CRUD access
// beyond the key/value surface.
func (s *Store) Repo() repository.Repository[*Record] {
	return s.repo
}

// Open opens a SQLite-backed bun database at the given DSN.
func Open(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Init creates the mirror table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Record)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	rec := &Record{}
	err := s.db.NewSelect().
		Model(rec).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return rec.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	now := time.Now()
	rec := &Record{
		ID:        uuid.New(),
		Key:       key,
		Value:     value,
		UpdatedAt: &now,
	}
	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*Record)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	return err
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.NewSelect().
		Model((*Record)(nil)).
		Column("key").
		Order("key ASC").
		Scan(ctx, &keys)
	if err != nil {
		return nil, err
	}
	return keys, nil
}
