package badgerdb

import (
	"context"
	"errors"

	"github.com/pco-network/pco/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const assetStoreDir = "assets"

type assetRepository struct {
	store *badgerhold.Store
}

func NewAssetRepository(config ...interface{}) (domain.AssetRepository, error) {
	store, err := openStore(assetStoreDir, config...)
	if err != nil {
		return nil, err
	}
	return &assetRepository{store}, nil
}

func (r *assetRepository) AddOrUpdateAsset(_ context.Context, asset domain.Asset) error {
	return withRetry(func() error {
		return r.store.Upsert(asset.Id, asset)
	})
}

func (r *assetRepository) GetAsset(_ context.Context, id string) (*domain.Asset, error) {
	var asset domain.Asset
	if err := r.store.Get(id, &asset); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepository) GetAssetIds(_ context.Context) ([]string, error) {
	var assets []domain.Asset
	if err := r.store.Find(&assets, nil); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(assets))
	for _, asset := range assets {
		ids = append(ids, asset.Id)
	}
	return ids, nil
}

func (r *assetRepository) Close() {
	//nolint:all
	r.store.Close()
}
