package subscription

import (
	"time"

	"github.com/goliatone/go-federation/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted row in federation_subscriptions.
type Record struct {
	bun.BaseModel `bun:"table:federation_subscriptions"`

	ID           uuid.UUID `bun:",pk,type:uuid"`
	SubscriberID uuid.UUID `bun:"subscriber_actor_id,notnull,type:uuid"`
	SubscribedID uuid.UUID `bun:"subscribed_actor_id,notnull,type:uuid"`
	State        string    `bun:"state,notnull"`
	CreatedAt    time.Time `bun:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at"`
}

func toDomain(record *Record) types.Subscription {
	if record == nil {
		return types.Subscription{}
	}
	return types.Subscription{
		ID:           record.ID,
		SubscriberID: record.SubscriberID,
		SubscribedID: record.SubscribedID,
		State:        types.SubscriptionState(record.State),
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

func toDomainPtr(record *Record) *types.Subscription {
	sub := toDomain(record)
	return &sub
}
