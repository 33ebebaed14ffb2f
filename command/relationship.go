package command

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-federation/pkg/types"
)

// ApplyRelationshipInput carries an inbound Follow or Undo whose follow state
// change has not been applied yet.
type ApplyRelationshipInput struct {
	Activity *types.ActivityPayload
}

// Type implements gocommand.Message.
func (ApplyRelationshipInput) Type() string {
	return "federation.relationship.apply"
}

// Validate implements gocommand.Message.
func (input ApplyRelationshipInput) Validate() error {
	if input.Activity == nil || input.Activity.ID == "" {
		return ErrActivityRequired
	}
	return nil
}

// ApplyRelationshipCommand applies inbound Follow and Undo activities to the
// subscription table. Activities that target actors outside this namespace
// are acknowledged and dropped.
type ApplyRelationshipCommand struct {
	accounts      types.AccountStore
	subscriptions types.SubscriptionStore
	content       types.ContentStore
	resolver      types.ObjectResolver
	namespace     *types.Namespace
	logger        types.Logger
}

// ApplyRelationshipCommandConfig wires dependencies for the relationship
// handler.
type ApplyRelationshipCommandConfig struct {
	Accounts      types.AccountStore
	Subscriptions types.SubscriptionStore
	Content       types.ContentStore
	Resolver      types.ObjectResolver
	Namespace     *types.Namespace
	Logger        types.Logger
}

// NewApplyRelationshipCommand constructs the relationship handler.
func NewApplyRelationshipCommand(cfg ApplyRelationshipCommandConfig) *ApplyRelationshipCommand {
	return &ApplyRelationshipCommand{
		accounts:      cfg.Accounts,
		subscriptions: cfg.Subscriptions,
		content:       cfg.Content,
		resolver:      cfg.Resolver,
		namespace:     cfg.Namespace,
		logger:        safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[ApplyRelationshipInput] = (*ApplyRelationshipCommand)(nil)

// Execute applies the follow state change the activity describes.
func (c *ApplyRelationshipCommand) Execute(ctx context.Context, input ApplyRelationshipInput) error {
	if c.accounts == nil || c.subscriptions == nil || c.namespace == nil {
		return types.ErrServiceNotReady
	}
	if err := input.Validate(); err != nil {
		return err
	}

	switch input.Activity.Type {
	case types.ActivityKindFollow:
		return c.applyFollow(ctx, input.Activity.ActorIRI(), input.Activity.Object.IRI)
	case types.ActivityKindUndo:
		return c.applyUndo(ctx, input.Activity)
	default:
		return nil
	}
}

func (c *ApplyRelationshipCommand) applyFollow(ctx context.Context, subscriberIRI, targetIRI string) error {
	if subscriberIRI == "" || targetIRI == "" {
		return ErrActivityRequired
	}
	if !c.namespace.Contains(targetIRI) {
		// The follow target lives elsewhere; nothing to record here.
		c.logger.Debug("ignoring follow for foreign actor", "target", targetIRI)
		return nil
	}
	target, err := c.accounts.ActorByURI(ctx, targetIRI)
	if err != nil {
		return err
	}
	if target == nil {
		c.logger.Debug("ignoring follow, target actor unknown", "target", targetIRI)
		return nil
	}

	subscriber, err := c.subscriberActor(ctx, subscriberIRI)
	if err != nil {
		return err
	}
	if subscriber == nil {
		return nil
	}

	if _, err := c.subscriptions.CreateOrReactivate(ctx, subscriber.ID, target.ID); err != nil {
		return err
	}
	c.logger.Info("follow applied", "subscriber", subscriberIRI, "target", targetIRI)
	return nil
}

func (c *ApplyRelationshipCommand) applyUndo(ctx context.Context, activity *types.ActivityPayload) error {
	subscriberIRI, targetIRI, err := c.undoneFollow(ctx, activity)
	if err != nil {
		return err
	}
	if subscriberIRI == "" || targetIRI == "" {
		c.logger.Debug("ignoring undo, inner follow unresolvable", "id", activity.ID)
		return nil
	}
	if !c.namespace.Contains(targetIRI) {
		return nil
	}

	subscriber, err := c.accounts.ActorByURI(ctx, subscriberIRI)
	if err != nil {
		return err
	}
	target, err := c.accounts.ActorByURI(ctx, targetIRI)
	if err != nil {
		return err
	}
	if subscriber == nil || target == nil {
		return nil
	}

	if err := c.subscriptions.MarkRemoved(ctx, subscriber.ID, target.ID); err != nil {
		return err
	}
	c.logger.Info("follow retracted", "subscriber", subscriberIRI, "target", targetIRI)
	return nil
}

// undoneFollow extracts the actor and object of the Follow being undone,
// from the inline object when present, otherwise from the stored copy of the
// referenced activity.
func (c *ApplyRelationshipCommand) undoneFollow(ctx context.Context, activity *types.ActivityPayload) (string, string, error) {
	if raw := activity.Object.Raw; raw != nil {
		if kind, _ := raw["type"].(string); kind == types.ActivityKindFollow {
			return refIRI(raw["actor"]), refIRI(raw["object"]), nil
		}
		return "", "", nil
	}
	if activity.Object.IRI == "" || c.content == nil {
		return "", "", nil
	}
	record, err := c.content.FindByExternalID(ctx, activity.Object.IRI)
	if err != nil {
		return "", "", err
	}
	if record == nil || record.Kind != types.ActivityKindFollow {
		return "", "", nil
	}
	return refIRI(record.Payload["actor"]), refIRI(record.Payload["object"]), nil
}

// subscriberActor returns the cached actor row for a remote subscriber,
// creating it from the resolved actor document on first contact.
func (c *ApplyRelationshipCommand) subscriberActor(ctx context.Context, iri string) (*types.Actor, error) {
	actor, err := c.accounts.ActorByURI(ctx, iri)
	if err != nil {
		return nil, err
	}
	if actor != nil {
		return actor, nil
	}
	if c.resolver == nil {
		return nil, types.ErrServiceNotReady
	}
	doc, err := c.resolver.Resolve(ctx, iri)
	if err != nil {
		return nil, err
	}
	if !doc.IsActor() {
		c.logger.Debug("ignoring follow, subscriber is not an actor", "subscriber", iri)
		return nil, nil
	}
	user, upsert := externalActorFromDocument(doc)
	return c.accounts.UpsertExternalActor(ctx, user, upsert)
}

// refIRI reads an object reference that may be a bare IRI string or an
// embedded document with an id.
func refIRI(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		id, _ := v["id"].(string)
		return id
	default:
		return ""
	}
}
