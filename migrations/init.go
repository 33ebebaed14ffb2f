package migrations

import (
	federation "github.com/goliatone/go-federation"
)

func init() {
	Register(federation.GetMigrationsFS())
}
