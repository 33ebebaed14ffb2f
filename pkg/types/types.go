package types

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActorType enumerates the actor variants exchanged between servers.
type ActorType string

const (
	ActorTypePerson       ActorType = "Person"
	ActorTypeOrganization ActorType = "Organization"
)

// Valid reports whether the value is one of the closed actor variants.
func (t ActorType) Valid() bool {
	switch t {
	case ActorTypePerson, ActorTypeOrganization:
		return true
	default:
		return false
	}
}

// UserKind distinguishes locally provisioned users from cached remote ones.
type UserKind string

const (
	// UserKindInternal users hold credentials and a local RSA keypair.
	UserKindInternal UserKind = "internal"
	// UserKindExternal users mirror a remote actor: external id plus cached
	// inbox/outbox locators, no credentials.
	UserKindExternal UserKind = "external"
)

// SubscriptionState tracks the follow relationship lifecycle.
type SubscriptionState string

const (
	SubscriptionStateRequested SubscriptionState = "requested"
	SubscriptionStateActive    SubscriptionState = "active"
	SubscriptionStateRemoved   SubscriptionState = "removed"
)

// Activity kinds this engine routes on. Anything else is stored and fanned
// out untouched.
const (
	ActivityKindCreate = "Create"
	ActivityKindUpdate = "Update"
	ActivityKindFollow = "Follow"
	ActivityKindUndo   = "Undo"
)

// Actor is an addressable entity with an inbox and outbox. Exactly one User
// owns it.
type Actor struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Type        ActorType
	DisplayName string
	Icon        string
	URI         string
	Inbox       string
	Outbox      string
}

// User is the closed internal/external variant described by Kind. Internal
// users carry PEM keypairs, external users carry the remote identifier and
// cached locators; switches over Kind are expected to be exhaustive.
type User struct {
	ID         uuid.UUID
	Kind       UserKind
	Username   string
	Email      string
	ExternalID string
	PublicKey  []byte
	PrivateKey []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Subscription relates a subscriber actor to a subscribed actor. At most one
// non-removed subscription exists per pair.
type Subscription struct {
	ID           uuid.UUID
	SubscriberID uuid.UUID
	SubscribedID uuid.UUID
	State        SubscriptionState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ActivityRecord is the stored, deduplicated form of a received or authored
// activity. ExternalID is unique across the store; ExternalIDHash is the
// deterministic digest used as the lookup key.
type ActivityRecord struct {
	ID             uuid.UUID
	ExternalID     string
	ExternalIDHash string
	Kind           string
	Payload        map[string]any
	ParentID       uuid.UUID
	PublishedAt    *time.Time
	UpdatedAt      *time.Time
	CreatedAt      time.Time
}

// Pagination bounds list queries.
type Pagination struct {
	Limit  int
	Offset int
}

// FollowingPage is the read model returned by the following-list query.
type FollowingPage struct {
	Actors     []Actor
	Total      int
	NextOffset int
	HasMore    bool
}

// Fetcher dereferences a remote URI and returns the raw payload. The HTTP
// client implements it; tests swap in fakes.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// ObjectResolver turns an identifier into its typed document, answering from
// local storage when the identifier is ours.
type ObjectResolver interface {
	Resolve(ctx context.Context, identifier string) (*ActivityPayload, error)
}

// ContentStore is the contract the engine requires of the activity store:
// lookup by external id and insert with a uniqueness guarantee.
// FindByExternalID returns (nil, nil) when no record matches. Insert returns
// an error wrapping ErrDuplicateContent when the external id is already
// stored, which is how concurrent ingestion races surface.
type ContentStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*ActivityRecord, error)
	Insert(ctx context.Context, record *ActivityRecord) error
}

// AccountStore exposes user/actor persistence to the engine. Lookup methods
// return (nil, nil) when nothing matches.
type AccountStore interface {
	UserByID(ctx context.Context, id uuid.UUID) (*User, error)
	UserByUsername(ctx context.Context, username string) (*User, error)
	UserByExternalID(ctx context.Context, externalID string) (*User, error)
	ActorByID(ctx context.Context, id uuid.UUID) (*Actor, error)
	ActorByUserID(ctx context.Context, userID uuid.UUID) (*Actor, error)
	ActorByURI(ctx context.Context, uri string) (*Actor, error)
	CreateUser(ctx context.Context, user *User, actor *Actor) error
	UpsertExternalActor(ctx context.Context, user *User, actor *Actor) (*Actor, error)
}

// SubscriptionStore mutates and reads follow state. ActiveFor returns
// (nil, nil) when no active subscription exists for the pair.
type SubscriptionStore interface {
	ActiveFor(ctx context.Context, subscriberID, subscribedID uuid.UUID) (*Subscription, error)
	ListActive(ctx context.Context, subscriberID uuid.UUID, p Pagination) ([]Subscription, int, error)
	CreateOrReactivate(ctx context.Context, subscriberID, subscribedID uuid.UUID) (*Subscription, error)
	MarkRemoved(ctx context.Context, subscriberID, subscribedID uuid.UUID) error
}

// Clock abstracts time retrieval for deterministic testing.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts UUID creation.
type IDGenerator interface {
	UUID() uuid.UUID
}

// Logger captures the logging hooks used across the engine.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Error(msg string, err error, fields ...any)
}

// SystemClock defers to time.Now for production usage.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator produces UUIDv4 identifiers.
type UUIDGenerator struct{}

// UUID returns a randomly generated UUID.
func (UUIDGenerator) UUID() uuid.UUID { return uuid.New() }

// NopLogger discards all log lines.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, error, ...any) {}

var (
	// ErrUsernameRequired indicates a username was omitted.
	ErrUsernameRequired = errors.New("go-federation: username required")
	// ErrActorRequired indicates an actor reference was not supplied.
	ErrActorRequired = errors.New("go-federation: actor reference required")
	// ErrActivityRequired indicates a dispatch was attempted without a payload.
	ErrActivityRequired = errors.New("go-federation: activity payload required")
	// ErrRecipientRequired indicates a follow/undo target was not supplied.
	ErrRecipientRequired = errors.New("go-federation: recipient identifier required")
	// ErrServiceNotReady indicates the service has not been fully configured.
	ErrServiceNotReady = errors.New("go-federation: service not ready")
	// ErrDuplicateContent indicates an insert lost the uniqueness race on an
	// activity's external id.
	ErrDuplicateContent = errors.New("go-federation: content already stored")
	// ErrDuplicateUser indicates the username or external id is already taken.
	ErrDuplicateUser = errors.New("go-federation: user already exists")
)
