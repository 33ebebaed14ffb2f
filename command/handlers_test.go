package command

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-federation/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestPersistContentHandler_StoresActivity(t *testing.T) {
	content := newFakeContent()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	handler := NewPersistContentHandler(PersistContentHandlerConfig{
		Content: content,
		Clock:   fixedClock{at: at},
	})

	published := time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)
	payload, err := types.DecodePayload([]byte(`{
		"id": "https://remote.example/activities/1",
		"type": "Create",
		"actor": "https://remote.example/user/grace",
		"published": "2024-04-30T08:00:00Z",
		"custom": 42
	}`))
	require.NoError(t, err)

	err = handler.Execute(context.Background(), ContentReceivedInput{Activity: payload})
	require.NoError(t, err)

	require.Len(t, content.inserted, 1)
	record := content.inserted[0]
	require.Equal(t, "https://remote.example/activities/1", record.ExternalID)
	require.Equal(t, types.ActivityKindCreate, record.Kind)
	require.Equal(t, at, record.CreatedAt)
	require.True(t, published.Equal(*record.PublishedAt))
	require.Equal(t, float64(42), record.Payload["custom"], "unknown fields survive persistence")
}

func TestPersistContentHandler_PropagatesDuplicate(t *testing.T) {
	content := newFakeContent()
	handler := NewPersistContentHandler(PersistContentHandlerConfig{Content: content})

	payload := &types.ActivityPayload{
		ID:   "https://remote.example/activities/1",
		Type: types.ActivityKindCreate,
	}
	require.NoError(t, handler.Execute(context.Background(), ContentReceivedInput{Activity: payload}))

	err := handler.Execute(context.Background(), ContentReceivedInput{Activity: payload})
	require.ErrorIs(t, err, types.ErrDuplicateContent)
}

func newRouteFixture(t *testing.T) (*fakeDispatcher, *RouteContentHandler) {
	t.Helper()
	dispatcher := &fakeDispatcher{}
	handler := NewRouteContentHandler(RouteContentHandlerConfig{
		Namespace:  mustNamespace("https://social.example"),
		Dispatcher: dispatcher,
	})
	return dispatcher, handler
}

func TestRouteContentHandler_FollowTriggersRefreshAndRelationship(t *testing.T) {
	dispatcher, handler := newRouteFixture(t)
	payload := &types.ActivityPayload{
		ID:     "https://remote.example/activities/1",
		Type:   types.ActivityKindFollow,
		Actor:  types.ObjectRef{IRI: "https://remote.example/user/grace"},
		Object: types.ObjectRef{IRI: "https://social.example/user/ada"},
	}

	err := handler.Execute(context.Background(), ContentReceivedInput{Activity: payload})
	require.NoError(t, err)
	require.Len(t, dispatcher.commands, 2)

	refresh, ok := dispatcher.commands[0].(RefreshExternalActorInput)
	require.True(t, ok)
	require.Equal(t, "https://remote.example/user/grace", refresh.ActorIRI)
	require.Nil(t, refresh.Document)

	apply, ok := dispatcher.commands[1].(ApplyRelationshipInput)
	require.True(t, ok)
	require.Equal(t, payload.ID, apply.Activity.ID)
}

func TestRouteContentHandler_InlineActorTravelsWithRefresh(t *testing.T) {
	dispatcher, handler := newRouteFixture(t)
	payload, err := types.DecodePayload([]byte(`{
		"id": "https://remote.example/activities/1",
		"type": "Create",
		"actor": {
			"id": "https://remote.example/user/grace",
			"type": "Person",
			"inbox": "https://remote.example/user/grace/inbox"
		},
		"object": "https://remote.example/notes/1"
	}`))
	require.NoError(t, err)

	err = handler.Execute(context.Background(), ContentReceivedInput{Activity: payload})
	require.NoError(t, err)
	require.Len(t, dispatcher.commands, 1)

	refresh, ok := dispatcher.commands[0].(RefreshExternalActorInput)
	require.True(t, ok)
	require.Equal(t, "https://remote.example/user/grace", refresh.ActorIRI)
	require.NotNil(t, refresh.Document)
	require.Equal(t, "https://remote.example/user/grace/inbox", refresh.Document.Inbox)
}

func TestRouteContentHandler_ActorDocumentRefreshesItself(t *testing.T) {
	dispatcher, handler := newRouteFixture(t)
	doc := remoteActorDoc("https://remote.example/user/grace", "grace")

	err := handler.Execute(context.Background(), ContentReceivedInput{Activity: doc})
	require.NoError(t, err)
	require.Len(t, dispatcher.commands, 1)

	refresh, ok := dispatcher.commands[0].(RefreshExternalActorInput)
	require.True(t, ok)
	require.Equal(t, doc.ID, refresh.ActorIRI)
	require.Same(t, doc, refresh.Document)
}

func TestRouteKnownContentHandler_FollowReappliesRelationship(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	handler := NewRouteKnownContentHandler(RouteKnownContentHandlerConfig{Dispatcher: dispatcher})

	record := &types.ActivityRecord{
		ExternalID: "https://remote.example/activities/follow-1",
		Kind:       types.ActivityKindFollow,
		Payload: map[string]any{
			"id":     "https://remote.example/activities/follow-1",
			"type":   "Follow",
			"actor":  "https://remote.example/user/grace",
			"object": "https://social.example/user/ada",
		},
	}

	err := handler.Execute(context.Background(), ContentAlreadyKnownInput{Record: record})
	require.NoError(t, err)
	require.Len(t, dispatcher.commands, 1)

	apply, ok := dispatcher.commands[0].(ApplyRelationshipInput)
	require.True(t, ok)
	require.Equal(t, record.ExternalID, apply.Activity.ID)
	require.Equal(t, "https://remote.example/user/grace", apply.Activity.ActorIRI())
	require.Equal(t, "https://social.example/user/ada", apply.Activity.Object.IRI)
}

func TestRouteKnownContentHandler_IgnoresPlainContent(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	handler := NewRouteKnownContentHandler(RouteKnownContentHandlerConfig{Dispatcher: dispatcher})

	record := &types.ActivityRecord{
		ExternalID: "https://remote.example/activities/1",
		Kind:       types.ActivityKindCreate,
		Payload:    map[string]any{"id": "https://remote.example/activities/1", "type": "Create"},
	}

	err := handler.Execute(context.Background(), ContentAlreadyKnownInput{Record: record})
	require.NoError(t, err)
	require.Empty(t, dispatcher.commands)
}

func TestRouteContentHandler_LocalActorNotRefreshed(t *testing.T) {
	dispatcher, handler := newRouteFixture(t)
	payload := &types.ActivityPayload{
		ID:     "https://social.example/objects/1",
		Type:   types.ActivityKindCreate,
		Actor:  types.ObjectRef{IRI: "https://social.example/user/ada"},
		Object: types.ObjectRef{IRI: "https://social.example/notes/1"},
	}

	err := handler.Execute(context.Background(), ContentReceivedInput{Activity: payload})
	require.NoError(t, err)
	require.Empty(t, dispatcher.commands)
}
