package command

import (
	"context"
	"testing"

	"github.com/goliatone/go-federation/pkg/types"
	"github.com/stretchr/testify/require"
)

func newRefreshFixture(t *testing.T) (*fakeAccounts, *fakeResolver, *RefreshExternalActorCommand) {
	t.Helper()
	accounts := newFakeAccounts()
	resolver := newFakeResolver()
	cmd := NewRefreshExternalActorCommand(RefreshExternalActorCommandConfig{
		Accounts:  accounts,
		Resolver:  resolver,
		Namespace: mustNamespace("https://social.example"),
	})
	return accounts, resolver, cmd
}

func TestRefreshExternalActorCommand_UsesSuppliedDocument(t *testing.T) {
	accounts, resolver, cmd := newRefreshFixture(t)
	doc := remoteActorDoc("https://remote.example/user/grace", "grace")

	err := cmd.Execute(context.Background(), RefreshExternalActorInput{
		ActorIRI: doc.ID,
		Document: doc,
	})
	require.NoError(t, err)
	require.Empty(t, resolver.calls, "an embedded document needs no fetch")

	actor, err := accounts.ActorByURI(context.Background(), doc.ID)
	require.NoError(t, err)
	require.NotNil(t, actor)
	require.Equal(t, "https://remote.example/user/grace/inbox", actor.Inbox)

	user, err := accounts.UserByExternalID(context.Background(), doc.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, types.UserKindExternal, user.Kind)
	require.Contains(t, string(user.PublicKey), "BEGIN PUBLIC KEY")
}

func TestRefreshExternalActorCommand_ResolvesWhenDocumentMissing(t *testing.T) {
	accounts, resolver, cmd := newRefreshFixture(t)
	iri := "https://remote.example/user/grace"
	resolver.docs[iri] = remoteActorDoc(iri, "grace")

	err := cmd.Execute(context.Background(), RefreshExternalActorInput{ActorIRI: iri})
	require.NoError(t, err)
	require.Equal(t, []string{iri}, resolver.calls)

	actor, err := accounts.ActorByURI(context.Background(), iri)
	require.NoError(t, err)
	require.NotNil(t, actor)
}

func TestRefreshExternalActorCommand_SkipsLocalActors(t *testing.T) {
	accounts, resolver, cmd := newRefreshFixture(t)

	err := cmd.Execute(context.Background(), RefreshExternalActorInput{
		ActorIRI: "https://social.example/user/ada",
	})
	require.NoError(t, err)
	require.Empty(t, resolver.calls)
	require.Zero(t, accounts.upserts)
}

func TestRefreshExternalActorCommand_SkipsNonActorDocuments(t *testing.T) {
	accounts, resolver, cmd := newRefreshFixture(t)
	iri := "https://remote.example/notes/1"
	resolver.docs[iri] = &types.ActivityPayload{ID: iri, Type: "Note"}

	err := cmd.Execute(context.Background(), RefreshExternalActorInput{ActorIRI: iri})
	require.NoError(t, err)
	require.Zero(t, accounts.upserts)
}

func TestRefreshExternalActorCommand_RequiresIRI(t *testing.T) {
	_, _, cmd := newRefreshFixture(t)

	err := cmd.Execute(context.Background(), RefreshExternalActorInput{ActorIRI: "  "})
	require.ErrorIs(t, err, ErrActorRequired)
}
