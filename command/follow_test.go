package command

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-federation/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newFollowFixture(t *testing.T) (*fakeAccounts, *fakeSubscriptions, *fakeContent, *fakeResolver, *fakeDispatcher, *FollowCommand, *types.Actor) {
	t.Helper()
	accounts := newFakeAccounts()
	_, subscriber := accounts.addAccount(
		&types.User{Kind: types.UserKindInternal, Username: "ada"},
		&types.Actor{Type: types.ActorTypePerson, URI: "https://social.example/user/ada"},
	)

	subscriptions := newFakeSubscriptions()
	content := newFakeContent()
	resolver := newFakeResolver()
	dispatcher := &fakeDispatcher{}

	cmd := NewFollowCommand(FollowCommandConfig{
		Accounts:      accounts,
		Subscriptions: subscriptions,
		Content:       content,
		Resolver:      resolver,
		Namespace:     mustNamespace("https://social.example"),
		Dispatcher:    dispatcher,
		IDGen:         stubIDGen{id: uuid.MustParse("11111111-2222-3333-4444-555555555555")},
		Clock:         fixedClock{at: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	})
	return accounts, subscriptions, content, resolver, dispatcher, cmd, subscriber
}

func TestFollowCommand_RemoteRecipient(t *testing.T) {
	accounts, subscriptions, content, resolver, dispatcher, cmd, subscriber := newFollowFixture(t)
	resolver.docs["https://remote.example/user/grace"] = remoteActorDoc("https://remote.example/user/grace", "grace")

	result := types.Subscription{}
	err := cmd.Execute(context.Background(), FollowInput{
		ActorID:   subscriber.ID,
		Recipient: "https://remote.example/user/grace",
		Result:    &result,
	})
	require.NoError(t, err)

	// The remote actor was cached and the subscription went straight to
	// active.
	target, err := accounts.ActorByURI(context.Background(), "https://remote.example/user/grace")
	require.NoError(t, err)
	require.NotNil(t, target)
	require.Equal(t, "https://remote.example/user/grace/inbox", target.Inbox)

	require.Equal(t, types.SubscriptionStateActive, result.State)
	require.Equal(t, subscriber.ID, result.SubscriberID)
	require.Equal(t, target.ID, result.SubscribedID)
	require.Len(t, subscriptions.created, 1)

	// The Follow activity was recorded under a local object URL.
	require.Len(t, content.inserted, 1)
	record := content.inserted[0]
	require.Equal(t, types.ActivityKindFollow, record.Kind)
	require.Equal(t, "https://social.example/objects/11111111-2222-3333-4444-555555555555", record.ExternalID)
	require.Equal(t, subscriber.URI, record.Payload["actor"])
	require.Equal(t, target.URI, record.Payload["object"])
	require.Equal(t, "2024-05-01T12:00:00Z", record.Payload["published"])

	// Delivery was handed to the dispatcher, addressed to the remote actor.
	require.Len(t, dispatcher.commands, 1)
	deliver, ok := dispatcher.commands[0].(DeliverInput)
	require.True(t, ok)
	require.Equal(t, subscriber.ID, deliver.ActorID)
	require.Equal(t, []string{target.URI}, deliver.Recipients)
	require.Equal(t, record.ExternalID, deliver.Activity["id"])
}

func TestFollowCommand_LocalRecipientSkipsDelivery(t *testing.T) {
	accounts, subscriptions, content, resolver, dispatcher, cmd, subscriber := newFollowFixture(t)
	_, local := accounts.addAccount(
		&types.User{Kind: types.UserKindInternal, Username: "grace"},
		&types.Actor{Type: types.ActorTypePerson, URI: "https://social.example/user/grace"},
	)
	doc := remoteActorDoc(local.URI, "grace")
	resolver.docs[local.URI] = doc

	err := cmd.Execute(context.Background(), FollowInput{
		ActorID:   subscriber.ID,
		Recipient: local.URI,
	})
	require.NoError(t, err)

	require.Len(t, subscriptions.created, 1)
	require.Equal(t, subscriptionPair{subscriber.ID, local.ID}, subscriptions.created[0])
	require.Len(t, content.inserted, 1)
	require.Empty(t, dispatcher.commands, "no delivery for local recipients")
	require.Zero(t, accounts.upserts, "local actors are never upserted")
}

func TestFollowCommand_RecipientNotActor(t *testing.T) {
	_, subscriptions, _, resolver, _, cmd, subscriber := newFollowFixture(t)
	resolver.docs["https://remote.example/notes/1"] = &types.ActivityPayload{
		ID:   "https://remote.example/notes/1",
		Type: "Note",
	}

	err := cmd.Execute(context.Background(), FollowInput{
		ActorID:   subscriber.ID,
		Recipient: "https://remote.example/notes/1",
	})
	require.ErrorIs(t, err, ErrRecipientNotActor)
	require.Empty(t, subscriptions.created)
}

func TestFollowCommand_UnknownSubscriber(t *testing.T) {
	_, _, _, _, _, cmd, _ := newFollowFixture(t)

	err := cmd.Execute(context.Background(), FollowInput{
		ActorID:   uuid.New(),
		Recipient: "https://remote.example/user/grace",
	})
	require.ErrorIs(t, err, ErrActorNotFound)
}

func TestFollowCommand_ValidatesInput(t *testing.T) {
	_, _, _, _, _, cmd, subscriber := newFollowFixture(t)

	err := cmd.Execute(context.Background(), FollowInput{Recipient: "https://remote.example/user/grace"})
	require.ErrorIs(t, err, ErrActorRequired)

	err = cmd.Execute(context.Background(), FollowInput{ActorID: subscriber.ID, Recipient: "  "})
	require.ErrorIs(t, err, ErrRecipientRequired)
}

func TestUndoFollowCommand_RetractsAndDelivers(t *testing.T) {
	accounts := newFakeAccounts()
	_, subscriber := accounts.addAccount(
		&types.User{Kind: types.UserKindInternal, Username: "ada"},
		&types.Actor{Type: types.ActorTypePerson, URI: "https://social.example/user/ada"},
	)
	_, target := accounts.addAccount(
		&types.User{Kind: types.UserKindExternal, ExternalID: "https://remote.example/user/grace"},
		&types.Actor{Type: types.ActorTypePerson, URI: "https://remote.example/user/grace"},
	)

	subscriptions := newFakeSubscriptions()
	_, err := subscriptions.CreateOrReactivate(context.Background(), subscriber.ID, target.ID)
	require.NoError(t, err)
	subscriptions.created = nil

	content := newFakeContent()
	dispatcher := &fakeDispatcher{}
	cmd := NewUndoFollowCommand(UndoFollowCommandConfig{
		Accounts:      accounts,
		Subscriptions: subscriptions,
		Content:       content,
		Namespace:     mustNamespace("https://social.example"),
		Dispatcher:    dispatcher,
		IDGen:         stubIDGen{id: uuid.MustParse("99999999-8888-7777-6666-555555555555")},
		Clock:         fixedClock{at: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)},
	})

	err = cmd.Execute(context.Background(), UndoFollowInput{
		ActorID:   subscriber.ID,
		Recipient: target.URI,
	})
	require.NoError(t, err)

	require.Equal(t, []subscriptionPair{{subscriber.ID, target.ID}}, subscriptions.removed)

	require.Len(t, content.inserted, 1)
	record := content.inserted[0]
	require.Equal(t, types.ActivityKindUndo, record.Kind)
	inner, ok := record.Payload["object"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, types.ActivityKindFollow, inner["type"])
	require.Equal(t, subscriber.URI, inner["actor"])
	require.Equal(t, target.URI, inner["object"])

	require.Len(t, dispatcher.commands, 1)
	deliver, ok := dispatcher.commands[0].(DeliverInput)
	require.True(t, ok)
	require.Equal(t, []string{target.URI}, deliver.Recipients)
}

func TestUndoFollowCommand_NoopWhenNeverFollowed(t *testing.T) {
	accounts := newFakeAccounts()
	_, subscriber := accounts.addAccount(
		&types.User{Kind: types.UserKindInternal, Username: "ada"},
		&types.Actor{Type: types.ActorTypePerson, URI: "https://social.example/user/ada"},
	)

	subscriptions := newFakeSubscriptions()
	content := newFakeContent()
	dispatcher := &fakeDispatcher{}
	cmd := NewUndoFollowCommand(UndoFollowCommandConfig{
		Accounts:      accounts,
		Subscriptions: subscriptions,
		Content:       content,
		Namespace:     mustNamespace("https://social.example"),
		Dispatcher:    dispatcher,
	})

	// Target actor entirely unknown.
	err := cmd.Execute(context.Background(), UndoFollowInput{
		ActorID:   subscriber.ID,
		Recipient: "https://remote.example/user/grace",
	})
	require.NoError(t, err)
	require.Empty(t, subscriptions.removed)
	require.Empty(t, content.inserted)
	require.Empty(t, dispatcher.commands)

	// Target known but no active subscription.
	_, target := accounts.addAccount(
		&types.User{Kind: types.UserKindExternal, ExternalID: "https://remote.example/user/grace"},
		&types.Actor{Type: types.ActorTypePerson, URI: "https://remote.example/user/grace"},
	)
	err = cmd.Execute(context.Background(), UndoFollowInput{
		ActorID:   subscriber.ID,
		Recipient: target.URI,
	})
	require.NoError(t, err)
	require.Empty(t, subscriptions.removed)
	require.Empty(t, dispatcher.commands)
}
