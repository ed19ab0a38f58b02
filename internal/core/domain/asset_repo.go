package domain

import "context"

type AssetRepository interface {
	AddOrUpdateAsset(ctx context.Context, asset Asset) error
	// GetAsset returns nil without error if the asset does not exist.
	GetAsset(ctx context.Context, id string) (*Asset, error)
	GetAssetIds(ctx context.Context) ([]string, error)
	Close()
}
