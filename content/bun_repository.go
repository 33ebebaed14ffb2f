// Package content persists the deduplicated activity stream. The unique
// external id hash is what makes ingestion idempotent: the database, not the
// application, arbitrates races between concurrent deliveries of the same
// activity.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-federation/bus"
	"github.com/goliatone/go-federation/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-repository-cache/repositorycache"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed content store.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

type contentStore interface {
	repository.Repository[*Record]
}

// Repository implements types.ContentStore. Reads go through the (optionally
// cached) repository; inserts go straight to the database handle carried by
// the dispatch context so they join the enclosing transaction.
type Repository struct {
	contentStore
	// base is the undecorated repository when a cache wraps contentStore;
	// misses are confirmed against it before they are trusted.
	base  repository.Repository[*Record]
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the default content repository.
func NewRepository(cfg RepositoryConfig, options ...RepositoryOption) (*Repository, error) {
	opts := applyRepositoryOptions(options)
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("content: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = newBaseRecordRepository(cfg.DB)
	}
	var base repository.Repository[*Record]
	if opts.CacheEnabled {
		if _, ok := repo.(*repositorycache.CachedRepository[*Record]); !ok {
			cacheCfg := cache.DefaultConfig()
			if opts.CacheConfig != nil {
				cacheCfg = *opts.CacheConfig
			}
			cacheService, err := cache.NewCacheService(cacheCfg)
			if err != nil {
				return nil, fmt.Errorf("content: build cache service: %w", err)
			}
			base = repo
			repo = repositorycache.New(repo, cacheService, cache.NewDefaultKeySerializer())
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}

	return &Repository{
		contentStore: repo,
		base:         base,
		db:           cfg.DB,
		clock:        clock,
		idGen:        idGen,
	}, nil
}

func newBaseRecordRepository(db *bun.DB) repository.Repository[*Record] {
	return repository.NewRepository(db, repository.ModelHandlers[*Record]{
		NewRecord: func() *Record { return &Record{} },
		GetID: func(rec *Record) uuid.UUID {
			if rec == nil {
				return uuid.Nil
			}
			return rec.ID
		},
		SetID: func(rec *Record, id uuid.UUID) {
			if rec != nil {
				rec.ID = id
			}
		},
	})
}

var (
	_ repository.Repository[*Record] = (*Repository)(nil)
	_ types.ContentStore             = (*Repository)(nil)
)

// FindByExternalID returns the stored activity with the given external id,
// or nil when nothing matches. Rows are immutable once stored, so a cached
// hit is always safe to serve; a cached miss is not, because inserts bypass
// the cache to join the dispatch transaction and can land after the miss was
// recorded. Misses are therefore confirmed against the base repository.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*types.ActivityRecord, error) {
	criteria := repository.SelectBy("external_id_hash", "=", HashExternalID(externalID))
	row, err := r.Get(ctx, criteria)
	if err == nil {
		return toDomainPtr(row), nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, err
	}
	if r.base == nil {
		return nil, nil
	}
	row, err = r.base.Get(ctx, criteria)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomainPtr(row), nil
}

// Insert stores a new activity. The unique index on the external id hash
// rejects duplicates; callers see that as types.ErrDuplicateContent and
// decide whether the duplicate is benign.
func (r *Repository) Insert(ctx context.Context, record *types.ActivityRecord) error {
	if record == nil || strings.TrimSpace(record.ExternalID) == "" {
		return types.ErrActivityRequired
	}
	row := fromDomain(record)
	if row.ID == uuid.Nil {
		row.ID = r.idGen.UUID()
	}
	if row.ExternalIDHash == "" {
		row.ExternalIDHash = HashExternalID(row.ExternalID)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = r.clock.Now()
	}

	idb := bus.IDBFrom(ctx, r.db)
	if idb == nil {
		if _, err := r.Create(ctx, row); err != nil {
			return classifyInsertErr(err, row.ExternalID)
		}
	} else if _, err := idb.NewInsert().Model(row).Exec(ctx); err != nil {
		return classifyInsertErr(err, row.ExternalID)
	}

	record.ID = row.ID
	record.ExternalIDHash = row.ExternalIDHash
	record.CreatedAt = row.CreatedAt
	return nil
}

func classifyInsertErr(err error, externalID string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", types.ErrDuplicateContent, externalID)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if repository.IsDuplicatedKey(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
