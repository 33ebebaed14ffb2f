package command

import (
	"context"
	"strings"
	"time"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-federation/pkg/types"
	"github.com/google/uuid"
)

// FollowInput captures a local actor's request to follow another actor.
type FollowInput struct {
	// ActorID is the local subscriber actor.
	ActorID uuid.UUID
	// Recipient is the identifier of the actor to follow, local or remote.
	Recipient string
	Result    *types.Subscription
}

// Type implements gocommand.Message.
func (FollowInput) Type() string {
	return "federation.follow"
}

// Validate implements gocommand.Message.
func (input FollowInput) Validate() error {
	if input.ActorID == uuid.Nil {
		return ErrActorRequired
	}
	if strings.TrimSpace(input.Recipient) == "" {
		return ErrRecipientRequired
	}
	return nil
}

// FollowCommand establishes the subscription, records the Follow activity,
// and hands delivery to the dispatcher. The subscription becomes active
// immediately; delivery of the Follow is asynchronous and does not gate the
// relationship.
type FollowCommand struct {
	accounts      types.AccountStore
	subscriptions types.SubscriptionStore
	content       types.ContentStore
	resolver      types.ObjectResolver
	namespace     *types.Namespace
	dispatcher    Dispatcher
	idGen         types.IDGenerator
	clock         types.Clock
	logger        types.Logger
}

// FollowCommandConfig wires dependencies for the follow handler.
type FollowCommandConfig struct {
	Accounts      types.AccountStore
	Subscriptions types.SubscriptionStore
	Content       types.ContentStore
	Resolver      types.ObjectResolver
	Namespace     *types.Namespace
	Dispatcher    Dispatcher
	IDGen         types.IDGenerator
	Clock         types.Clock
	Logger        types.Logger
}

// NewFollowCommand constructs the follow handler.
func NewFollowCommand(cfg FollowCommandConfig) *FollowCommand {
	return &FollowCommand{
		accounts:      cfg.Accounts,
		subscriptions: cfg.Subscriptions,
		content:       cfg.Content,
		resolver:      cfg.Resolver,
		namespace:     cfg.Namespace,
		dispatcher:    cfg.Dispatcher,
		idGen:         safeIDGen(cfg.IDGen),
		clock:         safeClock(cfg.Clock),
		logger:        safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[FollowInput] = (*FollowCommand)(nil)

// Execute resolves the recipient, activates the subscription, and stores
// and delivers the Follow activity.
func (c *FollowCommand) Execute(ctx context.Context, input FollowInput) error {
	if c.accounts == nil || c.subscriptions == nil || c.resolver == nil || c.namespace == nil {
		return types.ErrServiceNotReady
	}
	if err := input.Validate(); err != nil {
		return err
	}

	subscriber, err := c.accounts.ActorByID(ctx, input.ActorID)
	if err != nil {
		return err
	}
	if subscriber == nil {
		return ErrActorNotFound
	}

	doc, err := c.resolver.Resolve(ctx, strings.TrimSpace(input.Recipient))
	if err != nil {
		return err
	}
	if !doc.IsActor() {
		return ErrRecipientNotActor
	}

	target, err := c.targetActor(ctx, doc)
	if err != nil {
		return err
	}

	subscription, err := c.subscriptions.CreateOrReactivate(ctx, subscriber.ID, target.ID)
	if err != nil {
		return err
	}
	if input.Result != nil {
		*input.Result = *subscription
	}

	activityID := c.namespace.ObjectURL(c.idGen.UUID().String())
	activity := map[string]any{
		"@context":  activityContext,
		"id":        activityID,
		"type":      types.ActivityKindFollow,
		"actor":     subscriber.URI,
		"object":    target.URI,
		"to":        []string{target.URI},
		"published": now(c.clock).UTC().Format(time.RFC3339),
	}
	if c.content != nil {
		if err := c.content.Insert(ctx, &types.ActivityRecord{
			ExternalID: activityID,
			Kind:       types.ActivityKindFollow,
			Payload:    activity,
		}); err != nil {
			return err
		}
	}

	if !c.namespace.Contains(target.URI) && c.dispatcher != nil {
		if err := c.dispatcher.DispatchCommand(ctx, DeliverInput{
			ActorID:    subscriber.ID,
			Activity:   activity,
			Recipients: []string{target.URI},
		}); err != nil {
			return err
		}
	}

	c.logger.Info("follow established", "subscriber", subscriber.URI, "target", target.URI)
	return nil
}

// targetActor maps the resolved document to a stored actor row, caching
// remote actors on first contact.
func (c *FollowCommand) targetActor(ctx context.Context, doc *types.ActivityPayload) (*types.Actor, error) {
	if c.namespace.Contains(doc.ID) {
		actor, err := c.accounts.ActorByURI(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if actor == nil {
			return nil, ErrActorNotFound
		}
		return actor, nil
	}
	user, actor := externalActorFromDocument(doc)
	return c.accounts.UpsertExternalActor(ctx, user, actor)
}
