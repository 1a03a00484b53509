package storage

import (
	"encoding/json"
	"fmt"

	"github.com/eddielth/pt100-south/plugin"
)

// DatabaseType names a supported SQL database
type DatabaseType string

const (
	// MySQL
	MySQL DatabaseType = "mysql"
	// PostgreSQL
	PostgreSQL DatabaseType = "postgresql"
)

// DatabaseStorage is a StorageBackend that owns its schema
type DatabaseStorage interface {
	StorageBackend
	// InitDatabase creates the readings table
	InitDatabase() error
}

// NewDatabaseStorage opens the database backend of dbType
func NewDatabaseStorage(dbType string, dsn string) (DatabaseStorage, error) {
	switch DatabaseType(dbType) {
	case MySQL:
		return NewMySQLStorage(dsn)
	case PostgreSQL, "postgres":
		return NewPostgreSQLStorage(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// row is the column set shared by the SQL backends
type row struct {
	key         string
	asset       string
	ts          interface{}
	temperature float64
	readings    []byte
}

func toRow(r plugin.Reading) (row, error) {
	t, err := readingTime(r)
	if err != nil {
		return row{}, err
	}

	readings, err := json.Marshal(r.Readings)
	if err != nil {
		return row{}, fmt.Errorf("serialize readings failed: %w", err)
	}

	return row{
		key:         r.Key,
		asset:       r.Asset,
		ts:          t.UTC(),
		temperature: r.Temperature(),
		readings:    readings,
	}, nil
}
