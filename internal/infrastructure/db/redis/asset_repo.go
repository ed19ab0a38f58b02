package redisdb

import (
	"context"
	"sort"

	"github.com/pco-network/pco/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

const (
	assetPrefix = "pco:asset:"
	assetIdsKey = "pco:assets"
)

type assetRepository struct {
	rdb    *redis.Client
	assets *KVStore[domain.Asset]
}

func NewAssetRepository(config ...interface{}) (domain.AssetRepository, error) {
	rdb, err := newClient(config)
	if err != nil {
		return nil, err
	}
	return &assetRepository{rdb, NewRedisKVStore[domain.Asset](rdb, assetPrefix)}, nil
}

func (r *assetRepository) AddOrUpdateAsset(ctx context.Context, asset domain.Asset) error {
	if err := r.assets.Set(ctx, asset.Id, &asset); err != nil {
		return err
	}
	return r.rdb.SAdd(ctx, assetIdsKey, asset.Id).Err()
}

func (r *assetRepository) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	return r.assets.Get(ctx, id)
}

func (r *assetRepository) GetAssetIds(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, assetIdsKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *assetRepository) Close() {
	// nolint:errcheck
	r.rdb.Close()
}
