package content

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-federation/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted row in activity_stream_content.
type Record struct {
	bun.BaseModel `bun:"table:activity_stream_content"`

	ID             uuid.UUID      `bun:",pk,type:uuid"`
	ExternalID     string         `bun:"external_id,notnull"`
	ExternalIDHash string         `bun:"external_id_hash,notnull,unique"`
	Kind           string         `bun:"kind,notnull"`
	Payload        map[string]any `bun:"payload,type:jsonb"`
	ParentID       uuid.UUID      `bun:"parent_id,type:uuid,nullzero"`
	PublishedAt    *time.Time     `bun:"published_at"`
	UpdatedAt      *time.Time     `bun:"updated_at"`
	CreatedAt      time.Time      `bun:"created_at"`
}

// HashExternalID digests an activity IRI into the fixed-width lookup key the
// unique index is built on. Remote IRIs have no length bound.
func HashExternalID(externalID string) string {
	sum := sha256.Sum256([]byte(externalID))
	return hex.EncodeToString(sum[:])
}

func fromDomain(record *types.ActivityRecord) *Record {
	if record == nil {
		return &Record{}
	}
	return &Record{
		ID:             record.ID,
		ExternalID:     record.ExternalID,
		ExternalIDHash: record.ExternalIDHash,
		Kind:           record.Kind,
		Payload:        cloneMap(record.Payload),
		ParentID:       record.ParentID,
		PublishedAt:    record.PublishedAt,
		UpdatedAt:      record.UpdatedAt,
		CreatedAt:      record.CreatedAt,
	}
}

func toDomain(record *Record) types.ActivityRecord {
	if record == nil {
		return types.ActivityRecord{}
	}
	return types.ActivityRecord{
		ID:             record.ID,
		ExternalID:     record.ExternalID,
		ExternalIDHash: record.ExternalIDHash,
		Kind:           record.Kind,
		Payload:        cloneMap(record.Payload),
		ParentID:       record.ParentID,
		PublishedAt:    record.PublishedAt,
		UpdatedAt:      record.UpdatedAt,
		CreatedAt:      record.CreatedAt,
	}
}

func toDomainPtr(record *Record) *types.ActivityRecord {
	rec := toDomain(record)
	return &rec
}

func cloneMap(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for k, v := range origin {
		out[k] = v
	}
	return out
}
