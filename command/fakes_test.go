package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocommand "github.com/goliatone/go-command"
	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-federation/pkg/types"
	"github.com/google/uuid"
)

type fakeAccounts struct {
	mu      sync.Mutex
	users   []*types.User
	actors  []*types.Actor
	upserts int
}

func newFakeAccounts() *fakeAccounts { return &fakeAccounts{} }

func (f *fakeAccounts) addAccount(user *types.User, actor *types.Actor) (*types.User, *types.Actor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if actor.ID == uuid.Nil {
		actor.ID = uuid.New()
	}
	actor.UserID = user.ID
	f.users = append(f.users, user)
	f.actors = append(f.actors, actor)
	return user, actor
}

func (f *fakeAccounts) UserByID(_ context.Context, id uuid.UUID) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) UserByUsername(_ context.Context, username string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) UserByExternalID(_ context.Context, externalID string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ExternalID == externalID {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) ActorByID(_ context.Context, id uuid.UUID) (*types.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actors {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) ActorByUserID(_ context.Context, userID uuid.UUID) (*types.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actors {
		if a.UserID == userID {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) ActorByURI(_ context.Context, uri string) (*types.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actors {
		if a.URI == uri {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) CreateUser(_ context.Context, user *types.User, actor *types.Actor) error {
	for _, u := range f.users {
		if user.Username != "" && u.Username == user.Username {
			return types.ErrDuplicateUser
		}
	}
	f.addAccount(user, actor)
	return nil
}

func (f *fakeAccounts) UpsertExternalActor(_ context.Context, user *types.User, actor *types.Actor) (*types.Actor, error) {
	f.mu.Lock()
	f.upserts++
	for _, a := range f.actors {
		if a.URI == actor.URI {
			a.DisplayName = actor.DisplayName
			a.Inbox = actor.Inbox
			a.Outbox = actor.Outbox
			f.mu.Unlock()
			return a, nil
		}
	}
	f.mu.Unlock()
	_, stored := f.addAccount(user, actor)
	return stored, nil
}

type subscriptionPair struct {
	subscriber uuid.UUID
	subscribed uuid.UUID
}

type fakeSubscriptions struct {
	active  map[subscriptionPair]*types.Subscription
	created []subscriptionPair
	removed []subscriptionPair
}

func newFakeSubscriptions() *fakeSubscriptions {
	return &fakeSubscriptions{active: map[subscriptionPair]*types.Subscription{}}
}

func (f *fakeSubscriptions) ActiveFor(_ context.Context, subscriberID, subscribedID uuid.UUID) (*types.Subscription, error) {
	return f.active[subscriptionPair{subscriberID, subscribedID}], nil
}

func (f *fakeSubscriptions) ListActive(_ context.Context, subscriberID uuid.UUID, _ types.Pagination) ([]types.Subscription, int, error) {
	var out []types.Subscription
	for _, sub := range f.active {
		if sub.SubscriberID == subscriberID {
			out = append(out, *sub)
		}
	}
	return out, len(out), nil
}

func (f *fakeSubscriptions) CreateOrReactivate(_ context.Context, subscriberID, subscribedID uuid.UUID) (*types.Subscription, error) {
	pair := subscriptionPair{subscriberID, subscribedID}
	f.created = append(f.created, pair)
	if sub, ok := f.active[pair]; ok {
		return sub, nil
	}
	sub := &types.Subscription{
		ID:           uuid.New(),
		SubscriberID: subscriberID,
		SubscribedID: subscribedID,
		State:        types.SubscriptionStateActive,
	}
	f.active[pair] = sub
	return sub, nil
}

func (f *fakeSubscriptions) MarkRemoved(_ context.Context, subscriberID, subscribedID uuid.UUID) error {
	pair := subscriptionPair{subscriberID, subscribedID}
	f.removed = append(f.removed, pair)
	delete(f.active, pair)
	return nil
}

type fakeContent struct {
	records  map[string]*types.ActivityRecord
	inserted []*types.ActivityRecord
}

func newFakeContent() *fakeContent {
	return &fakeContent{records: map[string]*types.ActivityRecord{}}
}

func (f *fakeContent) FindByExternalID(_ context.Context, externalID string) (*types.ActivityRecord, error) {
	return f.records[externalID], nil
}

func (f *fakeContent) Insert(_ context.Context, record *types.ActivityRecord) error {
	if _, ok := f.records[record.ExternalID]; ok {
		return fmt.Errorf("%w: %s", types.ErrDuplicateContent, record.ExternalID)
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	f.records[record.ExternalID] = record
	f.inserted = append(f.inserted, record)
	return nil
}

type fakeResolver struct {
	docs  map[string]*types.ActivityPayload
	calls []string
	err   error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{docs: map[string]*types.ActivityPayload{}}
}

func (f *fakeResolver) Resolve(_ context.Context, identifier string) (*types.ActivityPayload, error) {
	f.calls = append(f.calls, identifier)
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[identifier]
	if !ok {
		return nil, fmt.Errorf("unresolvable: %s", identifier)
	}
	return doc, nil
}

type fakeDispatcher struct {
	commands []gocommand.Message
	events   []gocommand.Message
	err      error
}

func (f *fakeDispatcher) DispatchCommand(_ context.Context, msg gocommand.Message) error {
	f.commands = append(f.commands, msg)
	return f.err
}

func (f *fakeDispatcher) DispatchEvent(_ context.Context, msg gocommand.Message) error {
	f.events = append(f.events, msg)
	return f.err
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type stubIDGen struct{ id uuid.UUID }

func (g stubIDGen) UUID() uuid.UUID { return g.id }

type stubFeatureGate struct {
	enabled bool
	err     error
	keys    []string
}

func (s *stubFeatureGate) Enabled(_ context.Context, key string, _ ...featuregate.ResolveOption) (bool, error) {
	s.keys = append(s.keys, key)
	if s.err != nil {
		return false, s.err
	}
	return s.enabled, nil
}

// remoteActorDoc builds an actor document the way remote servers publish
// them.
func remoteActorDoc(iri, username string) *types.ActivityPayload {
	return &types.ActivityPayload{
		ID:                iri,
		Type:              string(types.ActorTypePerson),
		PreferredUsername: username,
		Name:              username,
		Inbox:             iri + "/inbox",
		Outbox:            iri + "/outbox",
		Extra: map[string]any{
			"id":   iri,
			"type": string(types.ActorTypePerson),
			"publicKey": map[string]any{
				"id":           iri + "#main-key",
				"owner":        iri,
				"publicKeyPem": "-----BEGIN PUBLIC KEY-----\nstub\n-----END PUBLIC KEY-----\n",
			},
		},
	}
}

func mustNamespace(baseURL string) *types.Namespace {
	ns, err := types.NewNamespace(baseURL)
	if err != nil {
		panic(err)
	}
	return ns
}
