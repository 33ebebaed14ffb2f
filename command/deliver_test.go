package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-federation/client"
	"github.com/goliatone/go-federation/keys"
	"github.com/goliatone/go-federation/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeInboxClient struct {
	deliveries []string
	signers    []*client.Signer
	// failures maps inbox URL to the number of attempts that should fail
	// before one succeeds. A negative count fails forever.
	failures map[string]int
}

func newFakeInboxClient() *fakeInboxClient {
	return &fakeInboxClient{failures: map[string]int{}}
}

func (f *fakeInboxClient) Deliver(_ context.Context, signer *client.Signer, inboxURL string, _ []byte) error {
	f.deliveries = append(f.deliveries, inboxURL)
	f.signers = append(f.signers, signer)
	remaining, ok := f.failures[inboxURL]
	if !ok {
		return nil
	}
	if remaining < 0 {
		return errors.New("peer unreachable")
	}
	if remaining > 0 {
		f.failures[inboxURL] = remaining - 1
		return errors.New("peer unreachable")
	}
	return nil
}

func newDeliverFixture(t *testing.T) (*fakeAccounts, *fakeResolver, *fakeInboxClient, *types.Actor) {
	t.Helper()
	keypair, err := keys.Generate()
	require.NoError(t, err)

	accounts := newFakeAccounts()
	_, sender := accounts.addAccount(
		&types.User{
			Kind:       types.UserKindInternal,
			Username:   "ada",
			PrivateKey: keypair.PrivatePEM,
			PublicKey:  keypair.PublicPEM,
		},
		&types.Actor{Type: types.ActorTypePerson, URI: "https://social.example/user/ada"},
	)

	resolver := newFakeResolver()
	for _, name := range []string{"amy", "bob", "cat"} {
		iri := "https://remote.example/user/" + name
		resolver.docs[iri] = remoteActorDoc(iri, name)
	}
	return accounts, resolver, newFakeInboxClient(), sender
}

func deliverCommand(accounts *fakeAccounts, resolver *fakeResolver, inbox *fakeInboxClient, cfg DeliverCommandConfig) *DeliverCommand {
	cfg.Accounts = accounts
	cfg.Resolver = resolver
	cfg.Client = inbox
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	return NewDeliverCommand(cfg)
}

func followActivity(senderURI string, recipients ...string) map[string]any {
	return map[string]any{
		"@context": activityContext,
		"id":       "https://social.example/objects/act-1",
		"type":     types.ActivityKindFollow,
		"actor":    senderURI,
		"to":       recipients,
	}
}

func TestDeliverCommand_DeliversToEveryRecipient(t *testing.T) {
	accounts, resolver, inbox, sender := newDeliverFixture(t)
	cmd := deliverCommand(accounts, resolver, inbox, DeliverCommandConfig{})

	report := DeliveryReport{}
	err := cmd.Execute(context.Background(), DeliverInput{
		ActorID:  sender.ID,
		Activity: followActivity(sender.URI),
		Recipients: []string{
			"https://remote.example/user/amy",
			"https://remote.example/user/bob",
		},
		Result: &report,
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://remote.example/user/amy/inbox",
		"https://remote.example/user/bob/inbox",
	}, inbox.deliveries)
	require.Len(t, report.Delivered, 2)
	require.Empty(t, report.Failed)
	require.Equal(t, sender.URI+"#main-key", inbox.signers[0].KeyID())
}

func TestDeliverCommand_FailureIsolatedPerRecipient(t *testing.T) {
	accounts, resolver, inbox, sender := newDeliverFixture(t)
	inbox.failures["https://remote.example/user/bob/inbox"] = -1
	cmd := deliverCommand(accounts, resolver, inbox, DeliverCommandConfig{Attempts: 2})

	report := DeliveryReport{}
	err := cmd.Execute(context.Background(), DeliverInput{
		ActorID:  sender.ID,
		Activity: followActivity(sender.URI),
		Recipients: []string{
			"https://remote.example/user/amy",
			"https://remote.example/user/bob",
			"https://remote.example/user/cat",
		},
		Result: &report,
	})
	require.NoError(t, err, "one dead recipient never fails the run")

	require.Equal(t, []string{
		"https://remote.example/user/amy",
		"https://remote.example/user/cat",
	}, report.Delivered)
	require.Len(t, report.Failed, 1)
	require.Equal(t, "https://remote.example/user/bob", report.Failed[0].Recipient)

	// amy once, bob twice (both attempts), cat once.
	require.Len(t, inbox.deliveries, 4)
}

func TestDeliverCommand_RetriesUntilSuccess(t *testing.T) {
	accounts, resolver, inbox, sender := newDeliverFixture(t)
	inbox.failures["https://remote.example/user/amy/inbox"] = 2
	cmd := deliverCommand(accounts, resolver, inbox, DeliverCommandConfig{Attempts: 3})

	report := DeliveryReport{}
	err := cmd.Execute(context.Background(), DeliverInput{
		ActorID:    sender.ID,
		Activity:   followActivity(sender.URI),
		Recipients: []string{"https://remote.example/user/amy"},
		Result:     &report,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"https://remote.example/user/amy"}, report.Delivered)
	require.Len(t, inbox.deliveries, 3)
}

func TestDeliverCommand_DeduplicatesRecipients(t *testing.T) {
	accounts, resolver, inbox, sender := newDeliverFixture(t)
	cmd := deliverCommand(accounts, resolver, inbox, DeliverCommandConfig{})

	err := cmd.Execute(context.Background(), DeliverInput{
		ActorID:  sender.ID,
		Activity: followActivity(sender.URI),
		Recipients: []string{
			"https://remote.example/user/amy",
			"https://remote.example/user/amy",
		},
	})
	require.NoError(t, err)
	require.Len(t, inbox.deliveries, 1)
}

func TestDeliverCommand_GateDisablesDelivery(t *testing.T) {
	accounts, resolver, inbox, sender := newDeliverFixture(t)
	gate := &stubFeatureGate{enabled: false}
	cmd := deliverCommand(accounts, resolver, inbox, DeliverCommandConfig{Gate: gate})

	err := cmd.Execute(context.Background(), DeliverInput{
		ActorID:    sender.ID,
		Activity:   followActivity(sender.URI),
		Recipients: []string{"https://remote.example/user/amy"},
	})
	require.ErrorIs(t, err, ErrDeliveryDisabled)
	require.Empty(t, inbox.deliveries)
	require.Equal(t, []string{featureDeliver}, gate.keys)
}

func TestDeliverCommand_RecipientWithoutInbox(t *testing.T) {
	accounts, resolver, inbox, sender := newDeliverFixture(t)
	resolver.docs["https://remote.example/user/amy"].Inbox = ""
	cmd := deliverCommand(accounts, resolver, inbox, DeliverCommandConfig{})

	report := DeliveryReport{}
	err := cmd.Execute(context.Background(), DeliverInput{
		ActorID:    sender.ID,
		Activity:   followActivity(sender.URI),
		Recipients: []string{"https://remote.example/user/amy"},
		Result:     &report,
	})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	require.ErrorIs(t, report.Failed[0].Err, ErrRecipientNotActor)
	require.Empty(t, inbox.deliveries)
}

func TestDeliverCommand_UnknownSender(t *testing.T) {
	accounts, resolver, inbox, _ := newDeliverFixture(t)
	cmd := deliverCommand(accounts, resolver, inbox, DeliverCommandConfig{})

	err := cmd.Execute(context.Background(), DeliverInput{
		ActorID:    uuid.New(),
		Activity:   followActivity("https://social.example/user/ghost"),
		Recipients: []string{"https://remote.example/user/amy"},
	})
	require.ErrorIs(t, err, ErrActorNotFound)
}
