package command

import (
	"errors"

	"github.com/goliatone/go-federation/pkg/types"
)

var (
	// ErrUsernameRequired indicates a provisioning input lacks a username.
	ErrUsernameRequired = types.ErrUsernameRequired
	// ErrActorRequired indicates an actor reference was not supplied.
	ErrActorRequired = types.ErrActorRequired
	// ErrActivityRequired indicates a dispatch was attempted without a payload.
	ErrActivityRequired = types.ErrActivityRequired
	// ErrRecipientRequired indicates a follow/undo/delivery target was missing.
	ErrRecipientRequired = types.ErrRecipientRequired
	// ErrActorNotFound indicates the referenced local actor does not exist.
	ErrActorNotFound = errors.New("go-federation: actor not found")
	// ErrRecipientNotActor indicates the follow target resolved to something
	// that is not an actor document.
	ErrRecipientNotActor = errors.New("go-federation: recipient is not an actor")
	// ErrDeliveryDisabled indicates outbound delivery is switched off via
	// feature gate.
	ErrDeliveryDisabled = errors.New("go-federation: delivery disabled")
)
