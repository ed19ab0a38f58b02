package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pco-network/pco/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

var wrappedAssetNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pco:wrapped-asset"))

// WrappedAssetId returns the id of the asset wrapping the given external
// token. The same token always maps to the same id.
func WrappedAssetId(contract, tokenId string) string {
	return uuid.NewSHA1(wrappedAssetNamespace, []byte(contract+"/"+tokenId)).String()
}

func (s *service) Wrap(ctx context.Context, req WrapRequest) (*domain.Asset, error) {
	registry, ok := s.registries[req.Contract]
	if !ok {
		return nil, domain.ErrUnknownRegistry
	}

	id := WrappedAssetId(req.Contract, req.TokenId)

	ctx, unlock, err := s.locker.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.repoManager.Assets().GetAsset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadyWrapped
	}

	now := s.now().Unix()
	asset, err := domain.NewAsset(
		id, s.custodian, req.Beneficiary, req.TaxNumerator, req.TaxPeriod, now,
	)
	if err != nil {
		return nil, err
	}
	if err := asset.Wrap(
		req.Caller, req.Contract, req.TokenId,
		orZero(req.Valuation), orZero(req.Payment), now,
	); err != nil {
		return nil, err
	}

	owner, err := registry.OwnerOf(ctx, req.TokenId)
	if err != nil {
		return nil, fmt.Errorf("failed to get owner of token %s: %w", req.TokenId, err)
	}
	if owner != req.Caller {
		return nil, domain.ErrNotTokenOwner
	}

	if err := registry.TransferFrom(ctx, req.Caller, s.custodian, req.TokenId); err != nil {
		return nil, fmt.Errorf("failed to take custody of token %s: %w", req.TokenId, err)
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.repoManager.Assets().AddOrUpdateAsset(ctx, *asset); err != nil {
		if err := registry.TransferFrom(ctx, s.custodian, req.Caller, req.TokenId); err != nil {
			log.WithError(err).Errorf(
				"failed to give token %s back to %s", req.TokenId, req.Caller,
			)
		}
		return nil, fmt.Errorf("failed to persist asset %s: %w", id, err)
	}

	s.publishEvents(ctx, asset)

	if err := s.watcher.schedule(asset); err != nil {
		log.WithError(err).Warnf("failed to schedule tax collection for asset %s", id)
	}

	return asset, nil
}
