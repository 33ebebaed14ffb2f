package command

import (
	"context"
	"encoding/json"
	"time"

	gocommand "github.com/goliatone/go-command"
	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-federation/pkg/types"
)

// Dispatcher is the slice of the bus handlers use to hand work onward.
// Dispatches made during another dispatch are deferred until the enclosing
// transaction commits.
type Dispatcher interface {
	DispatchCommand(ctx context.Context, msg gocommand.Message) error
	DispatchEvent(ctx context.Context, msg gocommand.Message) error
}

func safeClock(clock types.Clock) types.Clock {
	if clock != nil {
		return clock
	}
	return types.SystemClock{}
}

func safeLogger(logger types.Logger) types.Logger {
	if logger != nil {
		return logger
	}
	return types.NopLogger{}
}

func safeIDGen(idGen types.IDGenerator) types.IDGenerator {
	if idGen != nil {
		return idGen
	}
	return types.UUIDGenerator{}
}

func now(clock types.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now()
}

func featureEnabled(ctx context.Context, gate featuregate.FeatureGate, key string) (bool, error) {
	if gate == nil {
		return true, nil
	}
	return gate.Enabled(ctx, key)
}

// activityContext is the JSON-LD context stamped on locally authored
// activities.
const activityContext = "https://www.w3.org/ns/activitystreams"

// externalActorFromDocument maps an actor document onto the cached external
// user/actor pair.
func externalActorFromDocument(doc *types.ActivityPayload) (*types.User, *types.Actor) {
	user := &types.User{
		Kind:       types.UserKindExternal,
		ExternalID: doc.ID,
	}
	if pem := publicKeyPEM(doc); pem != "" {
		user.PublicKey = []byte(pem)
	}

	actorType := types.ActorType(doc.Type)
	if !actorType.Valid() {
		actorType = types.ActorTypePerson
	}
	actor := &types.Actor{
		Type:        actorType,
		DisplayName: doc.Name,
		Icon:        iconURL(doc),
		URI:         doc.ID,
		Inbox:       doc.Inbox,
		Outbox:      doc.Outbox,
	}
	return user, actor
}

func mustJSON(value map[string]any) []byte {
	data, err := json.Marshal(value)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func publicKeyPEM(doc *types.ActivityPayload) string {
	key, ok := doc.Extra["publicKey"].(map[string]any)
	if !ok {
		return ""
	}
	pem, _ := key["publicKeyPem"].(string)
	return pem
}

func iconURL(doc *types.ActivityPayload) string {
	if doc.Icon.IRI != "" {
		return doc.Icon.IRI
	}
	if url, ok := doc.Icon.Raw["url"].(string); ok {
		return url
	}
	return ""
}
