// Package subscription tracks follow relationships between actors. Removed
// rows are kept for audit; the live (subscriber, subscribed) pair is guarded
// by a partial unique index so a pair can be re-followed after an unfollow.
package subscription

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-federation/bus"
	"github.com/goliatone/go-federation/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed subscription store.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

type subscriptionStore interface {
	repository.Repository[*Record]
}

// Repository implements types.SubscriptionStore.
type Repository struct {
	subscriptionStore
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the default subscription repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("subscription: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*Record]{
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
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}

	return &Repository{
		subscriptionStore: repo,
		db:                cfg.DB,
		clock:             clock,
		idGen:             idGen,
	}, nil
}

var (
	_ repository.Repository[*Record] = (*Repository)(nil)
	_ types.SubscriptionStore        = (*Repository)(nil)
)

// ActiveFor returns the active subscription for the pair, or nil.
func (r *Repository) ActiveFor(ctx context.Context, subscriberID, subscribedID uuid.UUID) (*types.Subscription, error) {
	row, err := r.livePair(ctx, subscriberID, subscribedID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.State != string(types.SubscriptionStateActive) {
		return nil, nil
	}
	return toDomainPtr(row), nil
}

// ListActive pages through the actors the subscriber follows, newest first.
func (r *Repository) ListActive(ctx context.Context, subscriberID uuid.UUID, p types.Pagination) ([]types.Subscription, int, error) {
	p = normalizePagination(p)
	criteria := []repository.SelectCriteria{
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("subscriber_actor_id = ?", subscriberID).
				Where("state = ?", string(types.SubscriptionStateActive)).
				OrderExpr("created_at DESC").
				Limit(p.Limit).
				Offset(p.Offset)
		},
	}
	rows, total, err := r.List(ctx, criteria...)
	if err != nil {
		return nil, 0, err
	}
	subs := make([]types.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, toDomain(row))
	}
	return subs, total, nil
}

// CreateOrReactivate establishes an active subscription for the pair. The
// call is idempotent: an existing live subscription is promoted to active
// and returned unchanged otherwise.
func (r *Repository) CreateOrReactivate(ctx context.Context, subscriberID, subscribedID uuid.UUID) (*types.Subscription, error) {
	if subscriberID == uuid.Nil || subscribedID == uuid.Nil {
		return nil, types.ErrActorRequired
	}
	idb := bus.IDBFrom(ctx, r.db)
	if idb == nil {
		return nil, errors.New("subscription: db required for writes")
	}

	existing, err := r.livePair(ctx, subscriberID, subscribedID)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()

	if existing != nil {
		if existing.State == string(types.SubscriptionStateActive) {
			return toDomainPtr(existing), nil
		}
		existing.State = string(types.SubscriptionStateActive)
		existing.UpdatedAt = now
		if _, err := idb.NewUpdate().Model(existing).WherePK().Exec(ctx); err != nil {
			return nil, err
		}
		return toDomainPtr(existing), nil
	}

	row := &Record{
		ID:           r.idGen.UUID(),
		SubscriberID: subscriberID,
		SubscribedID: subscribedID,
		State:        string(types.SubscriptionStateActive),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := idb.NewInsert().Model(row).Exec(ctx); err != nil {
		// Lost the race against a concurrent follow; the winner's row is the
		// truth.
		if isUniqueViolation(err) {
			winner, lookupErr := r.livePair(ctx, subscriberID, subscribedID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if winner != nil {
				return toDomainPtr(winner), nil
			}
		}
		return nil, err
	}
	return toDomainPtr(row), nil
}

// MarkRemoved retires any live subscription for the pair. Removing a pair
// that was never followed is a no-op.
func (r *Repository) MarkRemoved(ctx context.Context, subscriberID, subscribedID uuid.UUID) error {
	idb := bus.IDBFrom(ctx, r.db)
	if idb == nil {
		return errors.New("subscription: db required for writes")
	}
	_, err := idb.NewUpdate().
		Model((*Record)(nil)).
		Set("state = ?", string(types.SubscriptionStateRemoved)).
		Set("updated_at = ?", r.clock.Now()).
		Where("subscriber_actor_id = ?", subscriberID).
		Where("subscribed_actor_id = ?", subscribedID).
		Where("state != ?", string(types.SubscriptionStateRemoved)).
		Exec(ctx)
	return err
}

func (r *Repository) livePair(ctx context.Context, subscriberID, subscribedID uuid.UUID) (*Record, error) {
	row, err := r.Get(ctx,
		repository.SelectBy("subscriber_actor_id", "=", subscriberID.String()),
		repository.SelectBy("subscribed_actor_id", "=", subscribedID.String()),
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("state != ?", string(types.SubscriptionStateRemoved))
		},
	)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func normalizePagination(p types.Pagination) types.Pagination {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func isUniqueViolation(err error) bool {
	if repository.IsDuplicatedKey(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
