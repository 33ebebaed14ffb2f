package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-federation/keys"
	"github.com/goliatone/go-federation/pkg/types"
)

// ProvisionedAccount is the result of provisioning a local user.
type ProvisionedAccount struct {
	User  types.User
	Actor types.Actor
}

// ProvisionUserInput captures the payload for local user provisioning.
type ProvisionUserInput struct {
	Username    string
	Email       string
	DisplayName string
	ActorType   types.ActorType
	Result      *ProvisionedAccount
}

// Type implements gocommand.Message.
func (ProvisionUserInput) Type() string {
	return "federation.user.provision"
}

// Validate implements gocommand.Message.
func (input ProvisionUserInput) Validate() error {
	if strings.TrimSpace(input.Username) == "" {
		return ErrUsernameRequired
	}
	return nil
}

// ProvisionUserCommand creates an internal user with a fresh signing keypair
// and its addressable actor.
type ProvisionUserCommand struct {
	accounts  types.AccountStore
	namespace *types.Namespace
	clock     types.Clock
	logger    types.Logger
}

// ProvisionUserCommandConfig wires dependencies for the provision handler.
type ProvisionUserCommandConfig struct {
	Accounts  types.AccountStore
	Namespace *types.Namespace
	Clock     types.Clock
	Logger    types.Logger
}

// NewProvisionUserCommand constructs the provision handler.
func NewProvisionUserCommand(cfg ProvisionUserCommandConfig) *ProvisionUserCommand {
	return &ProvisionUserCommand{
		accounts:  cfg.Accounts,
		namespace: cfg.Namespace,
		clock:     safeClock(cfg.Clock),
		logger:    safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[ProvisionUserInput] = (*ProvisionUserCommand)(nil)

// Execute provisions the user, generating the RSA keypair the actor will
// sign federation requests with.
func (c *ProvisionUserCommand) Execute(ctx context.Context, input ProvisionUserInput) error {
	if c.accounts == nil || c.namespace == nil {
		return types.ErrServiceNotReady
	}
	if err := input.Validate(); err != nil {
		return err
	}

	username := strings.TrimSpace(input.Username)
	existing, err := c.accounts.UserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return types.ErrDuplicateUser
	}

	keypair, err := keys.Generate()
	if err != nil {
		return err
	}

	actorType := input.ActorType
	if !actorType.Valid() {
		actorType = types.ActorTypePerson
	}

	user := &types.User{
		Kind:       types.UserKindInternal,
		Username:   username,
		Email:      strings.TrimSpace(input.Email),
		PrivateKey: keypair.PrivatePEM,
		PublicKey:  keypair.PublicPEM,
	}
	actor := &types.Actor{
		Type:        actorType,
		DisplayName: input.DisplayName,
		URI:         c.namespace.UserURL(username),
		Inbox:       c.namespace.InboxURL(username),
		Outbox:      c.namespace.OutboxURL(username),
	}
	if err := c.accounts.CreateUser(ctx, user, actor); err != nil {
		return err
	}

	c.logger.Info("provisioned local user", "username", username, "actor", actor.URI)
	if input.Result != nil {
		input.Result.User = *user
		input.Result.Actor = *actor
	}
	return nil
}
