// Package all registers every warehouse backend. Import it for side effects
// from the binary entrypoint.
package all

import (
	_ "f1etl/internal/warehouse/mssql"
	_ "f1etl/internal/warehouse/postgres"
	_ "f1etl/internal/warehouse/sqlite"
)
