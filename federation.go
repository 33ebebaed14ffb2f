package federation

import "github.com/goliatone/go-federation/service"

// Re-export the service package entry point so consumers can do
// `federation.New(...)` without importing internal wiring helpers.
type (
	Service  = service.Service
	Config   = service.Config
	Commands = service.Commands
	Queries  = service.Queries
)

// New constructs the go-federation runtime using the provided configuration.
func New(cfg Config) (*Service, error) {
	return service.New(cfg)
}
