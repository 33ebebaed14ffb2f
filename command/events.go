package command

import "github.com/goliatone/go-federation/pkg/types"

// ContentReceivedInput is emitted by the inbox pipeline for every activity
// that passed validation and was not already stored.
type ContentReceivedInput struct {
	Activity *types.ActivityPayload
}

// Type implements gocommand.Message.
func (ContentReceivedInput) Type() string {
	return "federation.content.received"
}

// Validate implements gocommand.Message.
func (input ContentReceivedInput) Validate() error {
	if input.Activity == nil || input.Activity.ID == "" {
		return ErrActivityRequired
	}
	return nil
}

// ContentAlreadyKnownInput is emitted when an inbound activity turns out to
// be a repeat delivery of something already stored. The redelivery routing
// handler re-applies relationship state from it; hosts can subscribe too.
type ContentAlreadyKnownInput struct {
	Record *types.ActivityRecord
}

// Type implements gocommand.Message.
func (ContentAlreadyKnownInput) Type() string {
	return "federation.content.known"
}

// Validate implements gocommand.Message.
func (input ContentAlreadyKnownInput) Validate() error {
	if input.Record == nil {
		return ErrActivityRequired
	}
	return nil
}
