package command

import (
	"context"
	"encoding/json"
	"time"

	gocommand "github.com/goliatone/go-command"
	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-federation/client"
	"github.com/goliatone/go-federation/keys"
	"github.com/goliatone/go-federation/pkg/types"
	"github.com/google/uuid"
)

// featureDeliver is the kill switch for outbound delivery. Operators flip it
// off to stop a misbehaving instance from spraying peers.
const featureDeliver = "federation.deliver"

// InboxClient posts signed activity documents to remote inboxes.
type InboxClient interface {
	Deliver(ctx context.Context, signer *client.Signer, inboxURL string, body []byte) error
}

// DeliveryFailure records one recipient that could not be reached after all
// attempts.
type DeliveryFailure struct {
	Recipient string
	Err       error
}

// DeliveryReport summarizes a delivery run.
type DeliveryReport struct {
	Delivered []string
	Failed    []DeliveryFailure
}

// DeliverInput captures an activity to fan out to recipients.
type DeliverInput struct {
	// ActorID is the local actor whose key signs the requests.
	ActorID uuid.UUID
	// Activity is the document to deliver, in canonical map form.
	Activity map[string]any
	// Recipients are actor identifiers; each is resolved to its inbox.
	Recipients []string
	Result     *DeliveryReport
}

// Type implements gocommand.Message.
func (DeliverInput) Type() string {
	return "federation.deliver"
}

// Validate implements gocommand.Message.
func (input DeliverInput) Validate() error {
	if input.ActorID == uuid.Nil {
		return ErrActorRequired
	}
	if len(input.Activity) == 0 {
		return ErrActivityRequired
	}
	if len(input.Recipients) == 0 {
		return ErrRecipientRequired
	}
	return nil
}

// DeliverCommand posts an activity to each recipient's inbox. Recipients are
// independent: a dead or hostile peer costs its own retries and nothing
// else. Failures land in the report and the log rather than the error
// return, because by the time delivery runs the triggering state change has
// already committed.
type DeliverCommand struct {
	accounts types.AccountStore
	resolver types.ObjectResolver
	client   InboxClient
	gate     featuregate.FeatureGate
	logger   types.Logger
	attempts int
	backoff  time.Duration
}

// DeliverCommandConfig wires dependencies for the delivery handler.
type DeliverCommandConfig struct {
	Accounts types.AccountStore
	Resolver types.ObjectResolver
	Client   InboxClient
	Gate     featuregate.FeatureGate
	Logger   types.Logger
	// Attempts caps tries per recipient; zero means 3.
	Attempts int
	// Backoff is the base wait between tries; zero means 500ms. The wait
	// grows linearly with the attempt number.
	Backoff time.Duration
}

// NewDeliverCommand constructs the delivery handler.
func NewDeliverCommand(cfg DeliverCommandConfig) *DeliverCommand {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DeliverCommand{
		accounts: cfg.Accounts,
		resolver: cfg.Resolver,
		client:   cfg.Client,
		gate:     cfg.Gate,
		logger:   safeLogger(cfg.Logger),
		attempts: attempts,
		backoff:  backoff,
	}
}

var _ gocommand.Commander[DeliverInput] = (*DeliverCommand)(nil)

// Execute signs and posts the activity to every recipient inbox.
func (c *DeliverCommand) Execute(ctx context.Context, input DeliverInput) error {
	if c.accounts == nil || c.resolver == nil || c.client == nil {
		return types.ErrServiceNotReady
	}
	if err := input.Validate(); err != nil {
		return err
	}

	enabled, err := featureEnabled(ctx, c.gate, featureDeliver)
	if err != nil {
		return err
	}
	if !enabled {
		c.logger.Info("delivery skipped, feature disabled", "activity", input.Activity["id"])
		return ErrDeliveryDisabled
	}

	signer, err := c.signerFor(ctx, input.ActorID)
	if err != nil {
		return err
	}
	body, err := json.Marshal(input.Activity)
	if err != nil {
		return err
	}

	report := DeliveryReport{}
	seen := make(map[string]bool, len(input.Recipients))
	for _, recipient := range input.Recipients {
		if recipient == "" || seen[recipient] {
			continue
		}
		seen[recipient] = true

		if err := c.deliverOne(ctx, signer, recipient, body); err != nil {
			c.logger.Error("delivery failed", err,
				"recipient", recipient, "activity", input.Activity["id"])
			report.Failed = append(report.Failed, DeliveryFailure{Recipient: recipient, Err: err})
			continue
		}
		report.Delivered = append(report.Delivered, recipient)
	}

	if input.Result != nil {
		*input.Result = report
	}
	return nil
}

func (c *DeliverCommand) deliverOne(ctx context.Context, signer *client.Signer, recipient string, body []byte) error {
	doc, err := c.resolver.Resolve(ctx, recipient)
	if err != nil {
		return err
	}
	if doc.Inbox == "" {
		return ErrRecipientNotActor
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if lastErr = c.client.Deliver(ctx, signer, doc.Inbox, body); lastErr == nil {
			return nil
		}
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return lastErr
}

func (c *DeliverCommand) signerFor(ctx context.Context, actorID uuid.UUID) (*client.Signer, error) {
	actor, err := c.accounts.ActorByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, ErrActorNotFound
	}
	user, err := c.accounts.UserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || len(user.PrivateKey) == 0 {
		return nil, ErrActorNotFound
	}
	keypair, err := keys.Parse(user.PrivateKey, user.PublicKey)
	if err != nil {
		return nil, err
	}
	return client.NewSigner(actor.URI+"#main-key", keypair.Private, nil)
}
