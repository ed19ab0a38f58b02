package db

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/pco-network/pco/internal/core/domain"
	"github.com/pco-network/pco/internal/core/ports"
	badgerdb "github.com/pco-network/pco/internal/infrastructure/db/badger"
	pgdb "github.com/pco-network/pco/internal/infrastructure/db/postgres"
	redisdb "github.com/pco-network/pco/internal/infrastructure/db/redis"
	sqlitedb "github.com/pco-network/pco/internal/infrastructure/db/sqlite"
	watermilldb "github.com/pco-network/pco/internal/infrastructure/db/watermill"
)

var (
	eventStoreTypes = map[string]func(...interface{}) (domain.EventRepository, error){
		"watermill": watermilldb.NewEventRepository,
		"postgres":  pgdb.NewEventRepository,
	}
	assetStoreTypes = map[string]func(...interface{}) (domain.AssetRepository, error){
		"badger":   badgerdb.NewAssetRepository,
		"sqlite":   sqlitedb.NewAssetRepository,
		"postgres": pgdb.NewAssetRepository,
		"redis":    redisdb.NewAssetRepository,
	}
	remittanceStoreTypes = map[string]func(...interface{}) (domain.RemittanceRepository, error){
		"badger":   badgerdb.NewRemittanceRepository,
		"sqlite":   sqlitedb.NewRemittanceRepository,
		"postgres": pgdb.NewRemittanceRepository,
		"redis":    redisdb.NewRemittanceRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

// ServiceConfig selects the stores backing the repo manager.
//
// EventStoreConfig is empty for watermill and holds the dsn for postgres.
// DataStoreConfig holds the data directory and an optional logger for
// badger, the data directory for sqlite, the dsn for postgres and the url
// for redis.
type ServiceConfig struct {
	EventStoreType string
	DataStoreType  string

	EventStoreConfig []interface{}
	DataStoreConfig  []interface{}
}

type service struct {
	eventStore      domain.EventRepository
	assetStore      domain.AssetRepository
	remittanceStore domain.RemittanceRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	eventStoreFactory, ok := eventStoreTypes[config.EventStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid event store type: %s", config.EventStoreType)
	}

	assetStoreFactory, ok := assetStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	remittanceStoreFactory, ok := remittanceStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	eventStoreConfig := config.EventStoreConfig
	if config.EventStoreType == "postgres" {
		db, err := openPostgres(eventStoreConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open event store: %w", err)
		}
		eventStoreConfig = []interface{}{db}
	}

	dataStoreConfig := config.DataStoreConfig
	switch config.DataStoreType {
	case "sqlite":
		db, err := openSqlite(dataStoreConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open data store: %w", err)
		}
		dataStoreConfig = []interface{}{db}
	case "postgres":
		db, err := openPostgres(dataStoreConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open data store: %w", err)
		}
		if err := pgdb.MigrateUp(db); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		dataStoreConfig = []interface{}{db}
	}

	eventStore, err := eventStoreFactory(eventStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create event store: %w", err)
	}

	assetStore, err := assetStoreFactory(dataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset store: %w", err)
	}

	remittanceStore, err := remittanceStoreFactory(dataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create remittance store: %w", err)
	}

	return &service{
		eventStore:      eventStore,
		assetStore:      assetStore,
		remittanceStore: remittanceStore,
	}, nil
}

func (s *service) Events() domain.EventRepository {
	return s.eventStore
}

func (s *service) Assets() domain.AssetRepository {
	return s.assetStore
}

func (s *service) Remittances() domain.RemittanceRepository {
	return s.remittanceStore
}

func (s *service) Close() {
	s.eventStore.Close()
	s.assetStore.Close()
	s.remittanceStore.Close()
}

func openSqlite(config []interface{}) (*sql.DB, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid data directory")
	}

	db, err := sqlitedb.OpenDb(filepath.Join(baseDir, sqliteDbFile))
	if err != nil {
		return nil, err
	}
	if err := sqlitedb.MigrateUp(db); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}
	return db, nil
}

func openPostgres(config []interface{}) (*sql.DB, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	dsn, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid postgres dsn")
	}
	return pgdb.OpenDb(dsn)
}
