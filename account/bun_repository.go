// Package account persists users and their actors. A user is either internal
// (locally provisioned, holds the signing keypair) or external (a cached
// mirror of a remote account keyed by its origin identifier).
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-federation/bus"
	"github.com/goliatone/go-federation/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed account store.
type RepositoryConfig struct {
	DB     *bun.DB
	Users  repository.Repository[*UserRecord]
	Actors repository.Repository[*ActorRecord]
	Clock  types.Clock
	IDGen  types.IDGenerator
}

// Repository implements types.AccountStore.
type Repository struct {
	users  repository.Repository[*UserRecord]
	actors repository.Repository[*ActorRecord]
	db     *bun.DB
	clock  types.Clock
	idGen  types.IDGenerator
}

// NewRepository constructs the default account repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.DB == nil && (cfg.Users == nil || cfg.Actors == nil) {
		return nil, errors.New("account: db or repositories required")
	}
	users := cfg.Users
	if users == nil {
		users = repository.NewRepository(cfg.DB, repository.ModelHandlers[*UserRecord]{
			NewRecord: func() *UserRecord { return &UserRecord{} },
			GetID: func(rec *UserRecord) uuid.UUID {
				if rec == nil {
					return uuid.Nil
				}
				return rec.ID
			},
			SetID: func(rec *UserRecord, id uuid.UUID) {
				if rec != nil {
					rec.ID = id
				}
			},
		})
	}
	actors := cfg.Actors
	if actors == nil {
		actors = repository.NewRepository(cfg.DB, repository.ModelHandlers[*ActorRecord]{
			NewRecord: func() *ActorRecord { return &ActorRecord{} },
			GetID: func(rec *ActorRecord) uuid.UUID {
				if rec == nil {
					return uuid.Nil
				}
				return rec.ID
			},
			SetID: func(rec *ActorRecord, id uuid.UUID) {
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
		users:  users,
		actors: actors,
		db:     cfg.DB,
		clock:  clock,
		idGen:  idGen,
	}, nil
}

var _ types.AccountStore = (*Repository)(nil)

// UserByID returns the user with the given id, or nil.
func (r *Repository) UserByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	row, err := r.users.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toUser(row), nil
}

// UserByUsername returns the local user with the given username, or nil.
func (r *Repository) UserByUsername(ctx context.Context, username string) (*types.User, error) {
	row, err := r.users.Get(ctx, repository.SelectBy("username", "=", username))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toUser(row), nil
}

// UserByExternalID returns the cached external user with the given origin
// identifier, or nil.
func (r *Repository) UserByExternalID(ctx context.Context, externalID string) (*types.User, error) {
	row, err := r.users.Get(ctx, repository.SelectBy("external_id", "=", externalID))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toUser(row), nil
}

// ActorByID returns the actor with the given id, or nil.
func (r *Repository) ActorByID(ctx context.Context, id uuid.UUID) (*types.Actor, error) {
	row, err := r.actors.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toActor(row), nil
}

// ActorByUserID returns the actor owned by the given user, or nil.
func (r *Repository) ActorByUserID(ctx context.Context, userID uuid.UUID) (*types.Actor, error) {
	row, err := r.actors.Get(ctx, repository.SelectBy("user_id", "=", userID.String()))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toActor(row), nil
}

// ActorByURI returns the actor addressed by the given canonical URI, or nil.
func (r *Repository) ActorByURI(ctx context.Context, uri string) (*types.Actor, error) {
	row, err := r.actors.Get(ctx, repository.SelectBy("uri", "=", uri))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toActor(row), nil
}

// CreateUser stores a user and its actor in one step, joining the dispatch
// transaction when one is in flight.
func (r *Repository) CreateUser(ctx context.Context, user *types.User, actor *types.Actor) error {
	if user == nil {
		return errors.New("account: user required")
	}
	if user.Kind == types.UserKindInternal && strings.TrimSpace(user.Username) == "" {
		return types.ErrUsernameRequired
	}
	if actor == nil {
		return types.ErrActorRequired
	}

	now := r.clock.Now()
	userRow := fromUser(user)
	if userRow.ID == uuid.Nil {
		userRow.ID = r.idGen.UUID()
	}
	if userRow.CreatedAt.IsZero() {
		userRow.CreatedAt = now
	}
	userRow.UpdatedAt = now

	actorRow := fromActor(actor)
	if actorRow.ID == uuid.Nil {
		actorRow.ID = r.idGen.UUID()
	}
	actorRow.UserID = userRow.ID
	actorRow.CreatedAt = now
	actorRow.UpdatedAt = now

	idb := bus.IDBFrom(ctx, r.db)
	if idb == nil {
		return errors.New("account: db required for writes")
	}
	if _, err := idb.NewInsert().Model(userRow).Exec(ctx); err != nil {
		return classifyAccountErr(err)
	}
	if _, err := idb.NewInsert().Model(actorRow).Exec(ctx); err != nil {
		return classifyAccountErr(err)
	}

	user.ID = userRow.ID
	user.CreatedAt = userRow.CreatedAt
	user.UpdatedAt = userRow.UpdatedAt
	actor.ID = actorRow.ID
	actor.UserID = actorRow.UserID
	return nil
}

// UpsertExternalActor refreshes the cached profile of a remote actor,
// creating the external user on first contact. Matching is by the remote
// account's origin identifier.
func (r *Repository) UpsertExternalActor(ctx context.Context, user *types.User, actor *types.Actor) (*types.Actor, error) {
	if user == nil || strings.TrimSpace(user.ExternalID) == "" {
		return nil, errors.New("account: external id required")
	}
	if actor == nil {
		return nil, types.ErrActorRequired
	}

	existing, err := r.UserByExternalID(ctx, user.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		user.Kind = types.UserKindExternal
		if err := r.CreateUser(ctx, user, actor); err != nil {
			return nil, err
		}
		return actor, nil
	}

	current, err := r.ActorByUserID(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		actor.UserID = existing.ID
		if err := r.insertActor(ctx, actor); err != nil {
			return nil, err
		}
		user.ID = existing.ID
		return actor, nil
	}

	now := r.clock.Now()
	idb := bus.IDBFrom(ctx, r.db)
	if idb == nil {
		return nil, errors.New("account: db required for writes")
	}

	userRow := fromUser(existing)
	userRow.PublicKeyPEM = string(user.PublicKey)
	userRow.UpdatedAt = now
	if _, err := idb.NewUpdate().Model(userRow).WherePK().Exec(ctx); err != nil {
		return nil, err
	}

	actorRow := fromActor(actor)
	actorRow.ID = current.ID
	actorRow.UserID = existing.ID
	actorRow.UpdatedAt = now
	if _, err := idb.NewUpdate().
		Model(actorRow).
		WherePK().
		ExcludeColumn("created_at").
		Exec(ctx); err != nil {
		return nil, err
	}

	user.ID = existing.ID
	return toActor(actorRow), nil
}

func (r *Repository) insertActor(ctx context.Context, actor *types.Actor) error {
	now := r.clock.Now()
	row := fromActor(actor)
	if row.ID == uuid.Nil {
		row.ID = r.idGen.UUID()
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	idb := bus.IDBFrom(ctx, r.db)
	if idb == nil {
		return errors.New("account: db required for writes")
	}
	if _, err := idb.NewInsert().Model(row).Exec(ctx); err != nil {
		return classifyAccountErr(err)
	}
	actor.ID = row.ID
	return nil
}

func classifyAccountErr(err error) error {
	msg := err.Error()
	if repository.IsDuplicatedKey(err) ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") {
		return fmt.Errorf("%w: %s", types.ErrDuplicateUser, msg)
	}
	return err
}
