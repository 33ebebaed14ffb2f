package command

import (
	"context"
	"strings"
	"time"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-federation/pkg/types"
	"github.com/google/uuid"
)

// UndoFollowInput captures a local actor's request to retract a follow.
type UndoFollowInput struct {
	ActorID   uuid.UUID
	Recipient string
}

// Type implements gocommand.Message.
func (UndoFollowInput) Type() string {
	return "federation.follow.undo"
}

// Validate implements gocommand.Message.
func (input UndoFollowInput) Validate() error {
	if input.ActorID == uuid.Nil {
		return ErrActorRequired
	}
	if strings.TrimSpace(input.Recipient) == "" {
		return ErrRecipientRequired
	}
	return nil
}

// UndoFollowCommand retires the subscription and announces the retraction.
// Undoing a follow that never existed is a no-op.
type UndoFollowCommand struct {
	accounts      types.AccountStore
	subscriptions types.SubscriptionStore
	content       types.ContentStore
	namespace     *types.Namespace
	dispatcher    Dispatcher
	idGen         types.IDGenerator
	clock         types.Clock
	logger        types.Logger
}

// UndoFollowCommandConfig wires dependencies for the undo handler.
type UndoFollowCommandConfig struct {
	Accounts      types.AccountStore
	Subscriptions types.SubscriptionStore
	Content       types.ContentStore
	Namespace     *types.Namespace
	Dispatcher    Dispatcher
	IDGen         types.IDGenerator
	Clock         types.Clock
	Logger        types.Logger
}

// NewUndoFollowCommand constructs the undo handler.
func NewUndoFollowCommand(cfg UndoFollowCommandConfig) *UndoFollowCommand {
	return &UndoFollowCommand{
		accounts:      cfg.Accounts,
		subscriptions: cfg.Subscriptions,
		content:       cfg.Content,
		namespace:     cfg.Namespace,
		dispatcher:    cfg.Dispatcher,
		idGen:         safeIDGen(cfg.IDGen),
		clock:         safeClock(cfg.Clock),
		logger:        safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[UndoFollowInput] = (*UndoFollowCommand)(nil)

// Execute removes the active subscription, if any, and delivers the Undo.
func (c *UndoFollowCommand) Execute(ctx context.Context, input UndoFollowInput) error {
	if c.accounts == nil || c.subscriptions == nil || c.namespace == nil {
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

	target, err := c.accounts.ActorByURI(ctx, strings.TrimSpace(input.Recipient))
	if err != nil {
		return err
	}
	if target == nil {
		// Never followed: nothing to retract.
		return nil
	}

	active, err := c.subscriptions.ActiveFor(ctx, subscriber.ID, target.ID)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}
	if err := c.subscriptions.MarkRemoved(ctx, subscriber.ID, target.ID); err != nil {
		return err
	}

	activityID := c.namespace.ObjectURL(c.idGen.UUID().String())
	activity := map[string]any{
		"@context": activityContext,
		"id":       activityID,
		"type":     types.ActivityKindUndo,
		"actor":    subscriber.URI,
		"object": map[string]any{
			"type":   types.ActivityKindFollow,
			"actor":  subscriber.URI,
			"object": target.URI,
		},
		"to":        []string{target.URI},
		"published": now(c.clock).UTC().Format(time.RFC3339),
	}
	if c.content != nil {
		if err := c.content.Insert(ctx, &types.ActivityRecord{
			ExternalID: activityID,
			Kind:       types.ActivityKindUndo,
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

	c.logger.Info("follow retracted", "subscriber", subscriber.URI, "target", target.URI)
	return nil
}
