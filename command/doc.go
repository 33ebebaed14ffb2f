// Package command implements the handlers the dispatcher routes federation
// messages to. Command inputs are dispatched by callers (provisioning,
// follow, delivery); event inputs are emitted by the inbox pipeline and fan
// out to the registered subscribers.
package command
