package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodePayload_RecipientsStringOrList(t *testing.T) {
	payload, err := DecodePayload([]byte(`{
		"id": "https://a.example/acts/1",
		"type": "Create",
		"to": "https://b.example/actor/bob"
	}`))
	require.NoError(t, err)
	require.Equal(t, StringList{"https://b.example/actor/bob"}, payload.To)

	payload, err = DecodePayload([]byte(`{
		"id": "https://a.example/acts/2",
		"type": "Create",
		"to": ["https://b.example/actor/bob", "https://c.example/actor/eve"]
	}`))
	require.NoError(t, err)
	require.Len(t, payload.To, 2)
}

func TestDecodePayload_ObjectRefForms(t *testing.T) {
	payload, err := DecodePayload([]byte(`{
		"id": "https://a.example/acts/3",
		"type": "Undo",
		"actor": "https://a.example/user/alice",
		"object": {"id": "https://a.example/acts/1", "type": "Follow"}
	}`))
	require.NoError(t, err)
	require.Equal(t, "https://a.example/user/alice", payload.Actor.IRI)
	require.Equal(t, "https://a.example/acts/1", payload.Object.IRI)
	require.Equal(t, "Follow", payload.Object.NestedType())
}

func TestDecodePayload_KeepsUnknownFields(t *testing.T) {
	payload, err := DecodePayload([]byte(`{
		"id": "https://a.example/acts/4",
		"type": "Create",
		"content": "hello"
	}`))
	require.NoError(t, err)
	normalized := payload.Normalize()
	require.Equal(t, "hello", normalized["content"])
	require.Equal(t, "https://a.example/acts/4", normalized["id"])
}

func TestActivityPayload_IsActor(t *testing.T) {
	require.True(t, (&ActivityPayload{Type: "Person"}).IsActor())
	require.True(t, (&ActivityPayload{Type: "Organization"}).IsActor())
	require.False(t, (&ActivityPayload{Type: "Create"}).IsActor())
}

func TestNamespace(t *testing.T) {
	ns, err := NewNamespace("https://a.example/")
	require.NoError(t, err)

	require.Equal(t, "https://a.example/user/alice", ns.UserURL("alice"))
	require.Equal(t, "https://a.example/user/alice/inbox", ns.InboxURL("alice"))
	require.Equal(t, "https://a.example/user/alice#main-key", ns.KeyID("alice"))

	require.True(t, ns.Contains("https://a.example/user/alice"))
	require.False(t, ns.Contains("https://b.example/actor/bob"))

	name, ok := ns.Username("https://a.example/user/alice/inbox")
	require.True(t, ok)
	require.Equal(t, "alice", name)

	_, ok = ns.Username("https://a.example/acts/1")
	require.False(t, ok)

	_, err = NewNamespace("a.example")
	require.Error(t, err)
}
