package application

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/domain"
)

func (s *service) OwnerOf(ctx context.Context, id string) (string, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return "", err
	}
	return asset.Owner, nil
}

func (s *service) BeneficiaryOf(ctx context.Context, id string) (string, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return "", err
	}
	return asset.Beneficiary, nil
}

func (s *service) ValuationOf(ctx context.Context, id string) (*uint256.Int, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(&asset.Valuation), nil
}

func (s *service) DepositOf(ctx context.Context, id string) (*uint256.Int, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(&asset.Deposit), nil
}

func (s *service) TaxRateOf(ctx context.Context, id string) (uint64, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return 0, err
	}
	return asset.TaxNumerator, nil
}

func (s *service) TaxPeriodOf(ctx context.Context, id string) (int64, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return 0, err
	}
	return asset.TaxPeriod, nil
}

func (s *service) LastCollectionTimeOf(ctx context.Context, id string) (int64, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return 0, err
	}
	return asset.LastCollectionTime, nil
}

func (s *service) LastTransferTimeOf(ctx context.Context, id string) (int64, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return 0, err
	}
	return asset.LastTransferTime, nil
}

func (s *service) TaxOwed(ctx context.Context, id string) (*uint256.Int, int64, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	now := s.now().Unix()
	return asset.TaxOwed(now), now, nil
}

func (s *service) TaxOwedSince(
	ctx context.Context, id string, since int64,
) (*uint256.Int, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	return asset.TaxOwedSince(since, s.now().Unix())
}

func (s *service) Foreclosed(ctx context.Context, id string) (bool, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return false, err
	}
	return asset.ForeclosedAt(s.now().Unix()), nil
}

func (s *service) ForeclosureTime(ctx context.Context, id string) (int64, bool, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return 0, false, err
	}
	foreclosureTime, ok := asset.ForeclosureTime()
	return foreclosureTime, ok, nil
}

func (s *service) WithdrawableDeposit(ctx context.Context, id string) (*uint256.Int, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	return asset.WithdrawableDeposit(s.now().Unix()), nil
}

func (s *service) TaxCollectedSinceLastTransferOf(
	ctx context.Context, id string,
) (*uint256.Int, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(&asset.TaxCollectedSinceLastTransfer), nil
}

func (s *service) TaxationCollected(ctx context.Context, id string) (*uint256.Int, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(&asset.TotalTaxCollected), nil
}

func (s *service) TitleChainOf(ctx context.Context, id string) ([]domain.TitleTransfer, error) {
	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	return asset.TitleChain, nil
}
