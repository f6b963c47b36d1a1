package postgres

import "f1etl/internal/warehouse"

func init() {
	// registers the postgres backend factory
	warehouse.Register("postgres", New)
}
