package federation

import "embed"

// MigrationsFS contains SQL migrations for both PostgreSQL and SQLite.
//
// The migrations are organized in a dialect-aware structure:
//   - Root files (data/sql/migrations/*.sql) contain PostgreSQL migrations
//   - SQLite overrides are in data/sql/migrations/sqlite/*.sql
//
// Migration runners that understand the layout (e.g. go-persistence-bun's
// dialect loader) pick the correct variant automatically.
//
//go:embed data/sql/migrations
var MigrationsFS embed.FS

// GetMigrationsFS exposes the SQL migration files so host applications can
// register them with their migration runner.
func GetMigrationsFS() embed.FS {
	return MigrationsFS
}
