// Package query exposes the read side of the federation engine: the
// following list and stored-content lookups.
package query

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-federation/pkg/types"
	"github.com/google/uuid"
)

// FollowingListInput pages through the actors a subscriber follows.
type FollowingListInput struct {
	ActorID    uuid.UUID
	Pagination types.Pagination
}

// Type implements gocommand.Message.
func (FollowingListInput) Type() string {
	return "federation.following.list"
}

// Validate implements gocommand.Message.
func (input FollowingListInput) Validate() error {
	if input.ActorID == uuid.Nil {
		return types.ErrActorRequired
	}
	return nil
}

// FollowingListQuery returns the page of actors an actor actively follows.
// Removed subscriptions never appear.
type FollowingListQuery struct {
	accounts      types.AccountStore
	subscriptions types.SubscriptionStore
}

// FollowingListQueryConfig wires dependencies for the following query.
type FollowingListQueryConfig struct {
	Accounts      types.AccountStore
	Subscriptions types.SubscriptionStore
}

// NewFollowingListQuery constructs the query helper.
func NewFollowingListQuery(cfg FollowingListQueryConfig) *FollowingListQuery {
	return &FollowingListQuery{
		accounts:      cfg.Accounts,
		subscriptions: cfg.Subscriptions,
	}
}

var _ gocommand.Querier[FollowingListInput, types.FollowingPage] = (*FollowingListQuery)(nil)

// Query resolves the subscription page to its actor profiles.
func (q *FollowingListQuery) Query(ctx context.Context, input FollowingListInput) (types.FollowingPage, error) {
	if q.accounts == nil || q.subscriptions == nil {
		return types.FollowingPage{}, types.ErrServiceNotReady
	}
	if err := input.Validate(); err != nil {
		return types.FollowingPage{}, err
	}

	subs, total, err := q.subscriptions.ListActive(ctx, input.ActorID, input.Pagination)
	if err != nil {
		return types.FollowingPage{}, err
	}

	page := types.FollowingPage{
		Actors: make([]types.Actor, 0, len(subs)),
		Total:  total,
	}
	for _, sub := range subs {
		actor, err := q.accounts.ActorByID(ctx, sub.SubscribedID)
		if err != nil {
			return types.FollowingPage{}, err
		}
		if actor == nil {
			// Subscription outlived its actor row; skip rather than fail the
			// whole page.
			continue
		}
		page.Actors = append(page.Actors, *actor)
	}

	page.NextOffset = input.Pagination.Offset + len(subs)
	page.HasMore = page.NextOffset < total
	return page, nil
}
