// Package service assembles the federation engine: repositories, resolver,
// HTTP client, bus, and inbox pipeline wired into one entry point.
package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-masker"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-federation/account"
	"github.com/goliatone/go-federation/bus"
	"github.com/goliatone/go-federation/client"
	"github.com/goliatone/go-federation/command"
	"github.com/goliatone/go-federation/content"
	"github.com/goliatone/go-federation/inbox"
	"github.com/goliatone/go-federation/pkg/types"
	"github.com/goliatone/go-federation/query"
	"github.com/goliatone/go-federation/resolver"
	"github.com/goliatone/go-federation/subscription"
	"github.com/google/uuid"
)

// Config captures the dependencies the host supplies. Only DB and BaseURL are
// required; everything else has a working default. Stores can be swapped for
// custom implementations, in which case DB may be nil.
type Config struct {
	DB      *bun.DB
	BaseURL string

	Accounts      types.AccountStore
	Content       types.ContentStore
	Subscriptions types.SubscriptionStore

	// Fetcher overrides remote dereferencing; defaults to the signed HTTP
	// client. Deliverer overrides inbox POSTing the same way.
	Fetcher   types.Fetcher
	Deliverer command.InboxClient

	HTTPClient *http.Client
	UserAgent  string
	Gate       featuregate.FeatureGate
	Masker     *masker.Masker
	Enqueuer   bus.Enqueuer

	// CacheEnabled wraps the content read path in the caching repository.
	CacheEnabled bool

	Clock       types.Clock
	IDGenerator types.IDGenerator
	Logger      types.Logger

	DeliveryAttempts int
	DeliveryBackoff  time.Duration
}

// Commands exposes the registered command handlers.
type Commands struct {
	ProvisionUser        *command.ProvisionUserCommand
	Follow               *command.FollowCommand
	UndoFollow           *command.UndoFollowCommand
	Deliver              *command.DeliverCommand
	RefreshExternalActor *command.RefreshExternalActorCommand
	ApplyRelationship    *command.ApplyRelationshipCommand
}

// Queries exposes the read-model helpers.
type Queries struct {
	Following     *query.FollowingListQuery
	ContentLookup *query.ContentLookupQuery
}

// Service is the entry point for go-federation.
type Service struct {
	cfg       Config
	namespace *types.Namespace
	bus       *bus.Dispatcher
	pipeline  *inbox.Pipeline
	resolver  *resolver.Resolver
	client    *client.Client

	accounts      types.AccountStore
	contentStore  types.ContentStore
	subscriptions types.SubscriptionStore

	commands Commands
	queries  Queries
}

// New constructs and wires the service.
func New(cfg Config) (*Service, error) {
	cfg = normalizeConfig(cfg)

	namespace, err := types.NewNamespace(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	accounts, contentStore, subscriptions, err := buildStores(cfg)
	if err != nil {
		return nil, err
	}

	httpClient := client.New(client.Config{
		HTTPClient: cfg.HTTPClient,
		UserAgent:  cfg.UserAgent,
		Logger:     cfg.Logger,
	})
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = httpClient
	}
	deliverer := cfg.Deliverer
	if deliverer == nil {
		deliverer = httpClient
	}

	objectResolver, err := resolver.New(resolver.Config{
		Namespace: namespace,
		Accounts:  accounts,
		Content:   contentStore,
		Fetcher:   fetcher,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	var tx bus.TxRunner
	if cfg.DB != nil {
		tx = bus.NewBunTxRunner(cfg.DB)
	}
	dispatcher := bus.New(bus.Config{
		Tx:       tx,
		Enqueuer: cfg.Enqueuer,
		Logger:   cfg.Logger,
	})

	s := &Service{
		cfg:           cfg,
		namespace:     namespace,
		bus:           dispatcher,
		resolver:      objectResolver,
		client:        httpClient,
		accounts:      accounts,
		contentStore:  contentStore,
		subscriptions: subscriptions,
	}
	s.commands = s.buildCommands(deliverer)
	s.queries = Queries{
		Following: query.NewFollowingListQuery(query.FollowingListQueryConfig{
			Accounts:      accounts,
			Subscriptions: subscriptions,
		}),
		ContentLookup: query.NewContentLookupQuery(contentStore),
	}
	if err := s.register(); err != nil {
		return nil, err
	}
	s.pipeline = inbox.New(inbox.Config{
		Content:    contentStore,
		Dispatcher: dispatcher,
		Masker:     cfg.Masker,
		Logger:     cfg.Logger,
	})
	return s, nil
}

func normalizeConfig(cfg Config) Config {
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = types.UUIDGenerator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	return cfg
}

func buildStores(cfg Config) (types.AccountStore, types.ContentStore, types.SubscriptionStore, error) {
	accounts := cfg.Accounts
	if accounts == nil {
		if cfg.DB == nil {
			return nil, nil, nil, fmt.Errorf("service: db required to build account store")
		}
		repo, err := account.NewRepository(account.RepositoryConfig{
			DB:    cfg.DB,
			Clock: cfg.Clock,
			IDGen: cfg.IDGenerator,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		accounts = repo
	}

	contentStore := cfg.Content
	if contentStore == nil {
		if cfg.DB == nil {
			return nil, nil, nil, fmt.Errorf("service: db required to build content store")
		}
		repo, err := content.NewRepository(content.RepositoryConfig{
			DB:    cfg.DB,
			Clock: cfg.Clock,
			IDGen: cfg.IDGenerator,
		}, content.WithCache(cfg.CacheEnabled))
		if err != nil {
			return nil, nil, nil, err
		}
		contentStore = repo
	}

	subscriptions := cfg.Subscriptions
	if subscriptions == nil {
		if cfg.DB == nil {
			return nil, nil, nil, fmt.Errorf("service: db required to build subscription store")
		}
		repo, err := subscription.NewRepository(subscription.RepositoryConfig{
			DB:    cfg.DB,
			Clock: cfg.Clock,
			IDGen: cfg.IDGenerator,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		subscriptions = repo
	}
	return accounts, contentStore, subscriptions, nil
}

func (s *Service) buildCommands(deliverer command.InboxClient) Commands {
	return Commands{
		ProvisionUser: command.NewProvisionUserCommand(command.ProvisionUserCommandConfig{
			Accounts:  s.accounts,
			Namespace: s.namespace,
			Clock:     s.cfg.Clock,
			Logger:    s.cfg.Logger,
		}),
		Follow: command.NewFollowCommand(command.FollowCommandConfig{
			Accounts:      s.accounts,
			Subscriptions: s.subscriptions,
			Content:       s.contentStore,
			Resolver:      s.resolver,
			Namespace:     s.namespace,
			Dispatcher:    s.bus,
			IDGen:         s.cfg.IDGenerator,
			Clock:         s.cfg.Clock,
			Logger:        s.cfg.Logger,
		}),
		UndoFollow: command.NewUndoFollowCommand(command.UndoFollowCommandConfig{
			Accounts:      s.accounts,
			Subscriptions: s.subscriptions,
			Content:       s.contentStore,
			Namespace:     s.namespace,
			Dispatcher:    s.bus,
			IDGen:         s.cfg.IDGenerator,
			Clock:         s.cfg.Clock,
			Logger:        s.cfg.Logger,
		}),
		Deliver: command.NewDeliverCommand(command.DeliverCommandConfig{
			Accounts: s.accounts,
			Resolver: s.resolver,
			Client:   deliverer,
			Gate:     s.cfg.Gate,
			Logger:   s.cfg.Logger,
			Attempts: s.cfg.DeliveryAttempts,
			Backoff:  s.cfg.DeliveryBackoff,
		}),
		RefreshExternalActor: command.NewRefreshExternalActorCommand(command.RefreshExternalActorCommandConfig{
			Accounts:  s.accounts,
			Resolver:  s.resolver,
			Namespace: s.namespace,
			Logger:    s.cfg.Logger,
		}),
		ApplyRelationship: command.NewApplyRelationshipCommand(command.ApplyRelationshipCommandConfig{
			Accounts:      s.accounts,
			Subscriptions: s.subscriptions,
			Content:       s.contentStore,
			Resolver:      s.resolver,
			Namespace:     s.namespace,
			Logger:        s.cfg.Logger,
		}),
	}
}

func (s *Service) register() error {
	if err := bus.RegisterCommand(s.bus, s.commands.ProvisionUser); err != nil {
		return err
	}
	if err := bus.RegisterCommand(s.bus, s.commands.Follow); err != nil {
		return err
	}
	if err := bus.RegisterCommand(s.bus, s.commands.UndoFollow); err != nil {
		return err
	}
	if err := bus.RegisterCommand(s.bus, s.commands.Deliver); err != nil {
		return err
	}
	if err := bus.RegisterCommand(s.bus, s.commands.RefreshExternalActor); err != nil {
		return err
	}
	if err := bus.RegisterCommand(s.bus, s.commands.ApplyRelationship); err != nil {
		return err
	}
	// Persistence runs before routing so side effects always act on stored
	// state.
	persist := command.NewPersistContentHandler(command.PersistContentHandlerConfig{
		Content: s.contentStore,
		Clock:   s.cfg.Clock,
		Logger:  s.cfg.Logger,
	})
	if err := bus.RegisterEvent(s.bus, persist); err != nil {
		return err
	}
	route := command.NewRouteContentHandler(command.RouteContentHandlerConfig{
		Namespace:  s.namespace,
		Dispatcher: s.bus,
		Logger:     s.cfg.Logger,
	})
	if err := bus.RegisterEvent(s.bus, route); err != nil {
		return err
	}
	// Redelivered Follow/Undo activities re-apply their relationship state,
	// so a peer retrying a Follow restores a locally removed subscription.
	known := command.NewRouteKnownContentHandler(command.RouteKnownContentHandlerConfig{
		Dispatcher: s.bus,
		Logger:     s.cfg.Logger,
	})
	return bus.RegisterEvent(s.bus, known)
}

// Commands returns the command facade.
func (s *Service) Commands() Commands { return s.commands }

// Queries returns the query facade.
func (s *Service) Queries() Queries { return s.queries }

// Bus returns the dispatcher so hosts can register additional handlers before
// the first dispatch.
func (s *Service) Bus() *bus.Dispatcher { return s.bus }

// Accounts exposes the account store so hosts can resolve local users
// without going through the activity document path.
func (s *Service) Accounts() types.AccountStore { return s.accounts }

// Namespace returns the canonical URI namespace of this server.
func (s *Service) Namespace() *types.Namespace { return s.namespace }

// ProvisionUser creates a local user with a fresh signing keypair.
func (s *Service) ProvisionUser(ctx context.Context, input command.ProvisionUserInput) (command.ProvisionedAccount, error) {
	result := command.ProvisionedAccount{}
	input.Result = &result
	if err := s.bus.DispatchCommand(ctx, input); err != nil {
		return command.ProvisionedAccount{}, err
	}
	return result, nil
}

// Follow subscribes a local actor to another actor, local or remote. The
// subscription is active on return; delivery of the Follow runs within the
// same dispatch.
func (s *Service) Follow(ctx context.Context, actorID uuid.UUID, recipient string) (types.Subscription, error) {
	result := types.Subscription{}
	err := s.bus.DispatchCommand(ctx, command.FollowInput{
		ActorID:   actorID,
		Recipient: recipient,
		Result:    &result,
	})
	if err != nil {
		return types.Subscription{}, err
	}
	return result, nil
}

// Unfollow retracts a follow. Unfollowing an actor that was never followed is
// a no-op.
func (s *Service) Unfollow(ctx context.Context, actorID uuid.UUID, recipient string) error {
	return s.bus.DispatchCommand(ctx, command.UndoFollowInput{
		ActorID:   actorID,
		Recipient: recipient,
	})
}

// Ingest processes a raw inbound activity document.
func (s *Service) Ingest(ctx context.Context, body []byte) (inbox.Result, error) {
	return s.pipeline.Ingest(ctx, body)
}

// Resolve dereferences an identifier to its typed document.
func (s *Service) Resolve(ctx context.Context, identifier string) (*types.ActivityPayload, error) {
	return s.resolver.Resolve(ctx, identifier)
}

// Following pages through the actors a subscriber actively follows.
func (s *Service) Following(ctx context.Context, actorID uuid.UUID, p types.Pagination) (types.FollowingPage, error) {
	return s.queries.Following.Query(ctx, query.FollowingListInput{
		ActorID:    actorID,
		Pagination: p,
	})
}

// LookupContent fetches a stored activity by its external id; a miss returns
// nil.
func (s *Service) LookupContent(ctx context.Context, externalID string) (*types.ActivityRecord, error) {
	return s.queries.ContentLookup.Query(ctx, query.ContentLookupInput{ExternalID: externalID})
}

// Ready reports whether the service has its required collaborators.
func (s *Service) Ready() bool {
	return s != nil &&
		s.accounts != nil &&
		s.contentStore != nil &&
		s.subscriptions != nil &&
		s.resolver != nil &&
		s.pipeline != nil
}

// HealthCheck surfaces missing configuration to upstream transports.
func (s *Service) HealthCheck(ctx context.Context) error {
	if !s.Ready() {
		return types.ErrServiceNotReady
	}
	if s.cfg.DB != nil {
		return s.cfg.DB.PingContext(ctx)
	}
	return nil
}
