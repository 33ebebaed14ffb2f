package account

import (
	"time"

	"github.com/goliatone/go-federation/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRecord models the persisted row in federation_users.
type UserRecord struct {
	bun.BaseModel `bun:"table:federation_users"`

	ID            uuid.UUID `bun:",pk,type:uuid"`
	Kind          string    `bun:"kind,notnull"`
	Username      string    `bun:"username,nullzero"`
	Email         string    `bun:"email,nullzero"`
	ExternalID    string    `bun:"external_id,nullzero"`
	PrivateKeyPEM string    `bun:"private_key_pem,nullzero"`
	PublicKeyPEM  string    `bun:"public_key_pem,nullzero"`
	CreatedAt     time.Time `bun:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at"`
}

// ActorRecord models the persisted row in federation_actors.
type ActorRecord struct {
	bun.BaseModel `bun:"table:federation_actors"`

	ID          uuid.UUID `bun:",pk,type:uuid"`
	UserID      uuid.UUID `bun:"user_id,notnull,type:uuid"`
	Type        string    `bun:"type,notnull"`
	DisplayName string    `bun:"display_name,nullzero"`
	Icon        string    `bun:"icon,nullzero"`
	URI         string    `bun:"uri,notnull,unique"`
	InboxURL    string    `bun:"inbox_url,notnull"`
	OutboxURL   string    `bun:"outbox_url,nullzero"`
	CreatedAt   time.Time `bun:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at"`
}

func fromUser(user *types.User) *UserRecord {
	if user == nil {
		return &UserRecord{}
	}
	return &UserRecord{
		ID:            user.ID,
		Kind:          string(user.Kind),
		Username:      user.Username,
		Email:         user.Email,
		ExternalID:    user.ExternalID,
		PrivateKeyPEM: string(user.PrivateKey),
		PublicKeyPEM:  string(user.PublicKey),
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

func toUser(record *UserRecord) *types.User {
	if record == nil {
		return nil
	}
	user := &types.User{
		ID:         record.ID,
		Kind:       types.UserKind(record.Kind),
		Username:   record.Username,
		Email:      record.Email,
		ExternalID: record.ExternalID,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
	if record.PrivateKeyPEM != "" {
		user.PrivateKey = []byte(record.PrivateKeyPEM)
	}
	if record.PublicKeyPEM != "" {
		user.PublicKey = []byte(record.PublicKeyPEM)
	}
	return user
}

func fromActor(actor *types.Actor) *ActorRecord {
	if actor == nil {
		return &ActorRecord{}
	}
	return &ActorRecord{
		ID:          actor.ID,
		UserID:      actor.UserID,
		Type:        string(actor.Type),
		DisplayName: actor.DisplayName,
		Icon:        actor.Icon,
		URI:         actor.URI,
		InboxURL:    actor.Inbox,
		OutboxURL:   actor.Outbox,
	}
}

func toActor(record *ActorRecord) *types.Actor {
	if record == nil {
		return nil
	}
	return &types.Actor{
		ID:          record.ID,
		UserID:      record.UserID,
		Type:        types.ActorType(record.Type),
		DisplayName: record.DisplayName,
		Icon:        record.Icon,
		URI:         record.URI,
		Inbox:       record.InboxURL,
		Outbox:      record.OutboxURL,
	}
}
