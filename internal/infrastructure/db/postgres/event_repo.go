package pgdb

import (
	"fmt"

	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/pco-network/pco/internal/core/domain"
	watermilldb "github.com/pco-network/pco/internal/infrastructure/db/watermill"
)

// NewEventRepository publishes events to postgres tables, one per topic,
// besides dispatching them to the registered handlers.
func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	db, err := dbFromConfig(config)
	if err != nil {
		return nil, err
	}

	publisher, err := watermillSQL.NewPublisher(db,
		watermillSQL.PublisherConfig{
			SchemaAdapter:        watermillSQL.DefaultPostgreSQLSchema{},
			AutoInitializeSchema: true,
		},
		watermilldb.NewLogger(),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot open event repository: %w", err)
	}

	return watermilldb.NewWatermillEventRepository(publisher), nil
}
