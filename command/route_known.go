package command

import (
	"context"
	"encoding/json"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-federation/pkg/types"
)

// RouteKnownContentHandler re-applies relationship bookkeeping when a Follow
// or Undo arrives again. The activity is already stored, but local state may
// have drifted since the first delivery (an operator removing a subscription,
// say), and peers redeliver precisely because they want the relationship to
// hold. Relationship application is idempotent, so re-running it is safe.
type RouteKnownContentHandler struct {
	dispatcher Dispatcher
	logger     types.Logger
}

// RouteKnownContentHandlerConfig wires dependencies for the redelivery
// routing handler.
type RouteKnownContentHandlerConfig struct {
	Dispatcher Dispatcher
	Logger     types.Logger
}

// NewRouteKnownContentHandler constructs the redelivery routing handler.
func NewRouteKnownContentHandler(cfg RouteKnownContentHandlerConfig) *RouteKnownContentHandler {
	return &RouteKnownContentHandler{
		dispatcher: cfg.Dispatcher,
		logger:     safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[ContentAlreadyKnownInput] = (*RouteKnownContentHandler)(nil)

// Execute re-routes stored relationship activities through their handler.
func (h *RouteKnownContentHandler) Execute(ctx context.Context, input ContentAlreadyKnownInput) error {
	if h.dispatcher == nil {
		return types.ErrServiceNotReady
	}
	if err := input.Validate(); err != nil {
		return err
	}
	record := input.Record

	switch record.Kind {
	case types.ActivityKindFollow, types.ActivityKindUndo:
	default:
		return nil
	}

	payload, err := payloadFromStored(record)
	if err != nil {
		h.logger.Error("stored activity does not decode", err, "id", record.ExternalID)
		return nil
	}
	return h.dispatcher.DispatchCommand(ctx, ApplyRelationshipInput{Activity: payload})
}

func payloadFromStored(record *types.ActivityRecord) (*types.ActivityPayload, error) {
	raw, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, err
	}
	payload, err := types.DecodePayload(raw)
	if err != nil {
		return nil, err
	}
	if payload.ID == "" {
		payload.ID = record.ExternalID
	}
	if payload.Type == "" {
		payload.Type = record.Kind
	}
	return payload, nil
}
