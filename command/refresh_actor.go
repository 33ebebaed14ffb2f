package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-federation/pkg/types"
)

// RefreshExternalActorInput asks for a remote actor's cached profile to be
// created or brought up to date. When the triggering activity embedded the
// actor document, it travels along and no fetch happens.
type RefreshExternalActorInput struct {
	ActorIRI string
	Document *types.ActivityPayload
}

// Type implements gocommand.Message.
func (RefreshExternalActorInput) Type() string {
	return "federation.actor.refresh"
}

// Validate implements gocommand.Message.
func (input RefreshExternalActorInput) Validate() error {
	if strings.TrimSpace(input.ActorIRI) == "" {
		return ErrActorRequired
	}
	return nil
}

// RefreshExternalActorCommand maintains the external user/actor cache.
type RefreshExternalActorCommand struct {
	accounts  types.AccountStore
	resolver  types.ObjectResolver
	namespace *types.Namespace
	logger    types.Logger
}

// RefreshExternalActorCommandConfig wires dependencies for the refresh
// handler.
type RefreshExternalActorCommandConfig struct {
	Accounts  types.AccountStore
	Resolver  types.ObjectResolver
	Namespace *types.Namespace
	Logger    types.Logger
}

// NewRefreshExternalActorCommand constructs the refresh handler.
func NewRefreshExternalActorCommand(cfg RefreshExternalActorCommandConfig) *RefreshExternalActorCommand {
	return &RefreshExternalActorCommand{
		accounts:  cfg.Accounts,
		resolver:  cfg.Resolver,
		namespace: cfg.Namespace,
		logger:    safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[RefreshExternalActorInput] = (*RefreshExternalActorCommand)(nil)

// Execute upserts the cached external actor from the supplied or resolved
// actor document.
func (c *RefreshExternalActorCommand) Execute(ctx context.Context, input RefreshExternalActorInput) error {
	if c.accounts == nil || c.resolver == nil || c.namespace == nil {
		return types.ErrServiceNotReady
	}
	if err := input.Validate(); err != nil {
		return err
	}

	iri := strings.TrimSpace(input.ActorIRI)
	if c.namespace.Contains(iri) {
		// Local actors are authoritative in storage already.
		return nil
	}

	doc := input.Document
	if doc == nil {
		resolved, err := c.resolver.Resolve(ctx, iri)
		if err != nil {
			return err
		}
		doc = resolved
	}
	if !doc.IsActor() || doc.ID == "" {
		c.logger.Debug("skipping refresh, document is not an actor", "iri", iri, "type", doc.Type)
		return nil
	}

	user, actor := externalActorFromDocument(doc)
	if _, err := c.accounts.UpsertExternalActor(ctx, user, actor); err != nil {
		return err
	}
	c.logger.Debug("refreshed external actor", "iri", doc.ID)
	return nil
}
