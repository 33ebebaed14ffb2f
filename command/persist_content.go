package command

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-federation/pkg/types"
)

// PersistContentHandler stores received activities. It runs inside the
// event's transaction; a uniqueness conflict aborts the dispatch and
// surfaces to the inbox pipeline, which owns the recovery.
type PersistContentHandler struct {
	content types.ContentStore
	clock   types.Clock
	logger  types.Logger
}

// PersistContentHandlerConfig wires dependencies for the persist handler.
type PersistContentHandlerConfig struct {
	Content types.ContentStore
	Clock   types.Clock
	Logger  types.Logger
}

// NewPersistContentHandler constructs the persist handler.
func NewPersistContentHandler(cfg PersistContentHandlerConfig) *PersistContentHandler {
	return &PersistContentHandler{
		content: cfg.Content,
		clock:   safeClock(cfg.Clock),
		logger:  safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[ContentReceivedInput] = (*PersistContentHandler)(nil)

// Execute inserts the activity into the content store.
func (h *PersistContentHandler) Execute(ctx context.Context, input ContentReceivedInput) error {
	if h.content == nil {
		return types.ErrServiceNotReady
	}
	if err := input.Validate(); err != nil {
		return err
	}

	payload := input.Activity
	record := &types.ActivityRecord{
		ExternalID:  payload.ID,
		Kind:        payload.Type,
		Payload:     payload.Normalize(),
		PublishedAt: payload.Published,
		UpdatedAt:   payload.Updated,
		CreatedAt:   now(h.clock),
	}
	if err := h.content.Insert(ctx, record); err != nil {
		return err
	}
	h.logger.Debug("stored activity", "id", record.ExternalID, "kind", record.Kind)
	return nil
}
