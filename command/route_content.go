package command

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-federation/pkg/types"
)

// RouteContentHandler fans received activities out to their side effects:
// refreshing the cached profile of the sending actor and applying follow
// state changes. The follow-on commands are dispatched through the bus, so
// they run only after the persist transaction commits.
type RouteContentHandler struct {
	namespace  *types.Namespace
	dispatcher Dispatcher
	logger     types.Logger
}

// RouteContentHandlerConfig wires dependencies for the routing handler.
type RouteContentHandlerConfig struct {
	Namespace  *types.Namespace
	Dispatcher Dispatcher
	Logger     types.Logger
}

// NewRouteContentHandler constructs the routing handler.
func NewRouteContentHandler(cfg RouteContentHandlerConfig) *RouteContentHandler {
	return &RouteContentHandler{
		namespace:  cfg.Namespace,
		dispatcher: cfg.Dispatcher,
		logger:     safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[ContentReceivedInput] = (*RouteContentHandler)(nil)

// Execute schedules the side effects the activity calls for.
func (h *RouteContentHandler) Execute(ctx context.Context, input ContentReceivedInput) error {
	if h.namespace == nil || h.dispatcher == nil {
		return types.ErrServiceNotReady
	}
	if err := input.Validate(); err != nil {
		return err
	}
	payload := input.Activity

	// A remote actor document refreshes its own cache entry.
	if payload.IsActor() && !h.namespace.Contains(payload.ID) {
		return h.dispatcher.DispatchCommand(ctx, RefreshExternalActorInput{
			ActorIRI: payload.ID,
			Document: payload,
		})
	}

	if iri := payload.ActorIRI(); iri != "" && !h.namespace.Contains(iri) {
		refresh := RefreshExternalActorInput{ActorIRI: iri}
		if payload.Actor.Raw != nil {
			if doc, err := types.DecodePayload(mustJSON(payload.Actor.Raw)); err == nil && doc.IsActor() {
				refresh.Document = doc
			}
		}
		if err := h.dispatcher.DispatchCommand(ctx, refresh); err != nil {
			return err
		}
	}

	switch payload.Type {
	case types.ActivityKindFollow, types.ActivityKindUndo:
		return h.dispatcher.DispatchCommand(ctx, ApplyRelationshipInput{Activity: payload})
	}
	return nil
}
