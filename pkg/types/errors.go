package types

import errors "github.com/goliatone/go-errors"

// Text codes attached to rich errors so transports and tests can branch on
// failure class without string matching.
const (
	// TextCodeActivityInvalid marks malformed or incomplete inbound payloads.
	TextCodeActivityInvalid = "ACTIVITY_INVALID"
	// TextCodeResolutionFailed marks identifiers that could not be resolved
	// to a typed object; recoverable per recipient.
	TextCodeResolutionFailed = "OBJECT_RESOLUTION_FAILED"
	// TextCodeDeliveryFailed marks remote delivery failures and carries the
	// HTTP status and response body in the error metadata.
	TextCodeDeliveryFailed = "DELIVERY_FAILED"
	// TextCodeDispatchFailed marks unexpected handler faults surfaced by the
	// bus after rolling back the enclosing transaction.
	TextCodeDispatchFailed = "BUS_DISPATCH_FAILED"
	// TextCodeHandlerMissing marks a command type with no registered handler,
	// a configuration error.
	TextCodeHandlerMissing = "HANDLER_NOT_REGISTERED"
)

func hasTextCode(err error, code string) bool {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// IsValidationError reports whether the error marks a malformed payload.
func IsValidationError(err error) bool { return hasTextCode(err, TextCodeActivityInvalid) }

// IsResolutionError reports whether the error marks a failed object
// resolution.
func IsResolutionError(err error) bool { return hasTextCode(err, TextCodeResolutionFailed) }

// IsDeliveryError reports whether the error marks a failed remote delivery.
func IsDeliveryError(err error) bool { return hasTextCode(err, TextCodeDeliveryFailed) }

// IsDispatchError reports whether the error is a bus dispatch failure.
func IsDispatchError(err error) bool { return hasTextCode(err, TextCodeDispatchFailed) }
