package pgdb

import (
	"github.com/pco-network/pco/internal/core/domain"
	"github.com/pco-network/pco/internal/infrastructure/db/sqldb"
)

func NewAssetRepository(config ...interface{}) (domain.AssetRepository, error) {
	db, err := dbFromConfig(config)
	if err != nil {
		return nil, err
	}
	return sqldb.NewAssetRepository(db, sqldb.DollarNumbers), nil
}

func NewRemittanceRepository(config ...interface{}) (domain.RemittanceRepository, error) {
	db, err := dbFromConfig(config)
	if err != nil {
		return nil, err
	}
	return sqldb.NewRemittanceRepository(db, sqldb.DollarNumbers), nil
}
