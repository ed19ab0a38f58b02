package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/domain"
)

const (
	upsertAssetQuery = `
INSERT INTO asset (
	id, custodian, owner, approved, beneficiary, valuation, deposit,
	tax_numerator, tax_period, last_collection_time, last_transfer_time,
	tax_collected_since_last_transfer, total_tax_collected,
	wrapped_contract, wrapped_token_id, created_at, version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	owner = excluded.owner,
	approved = excluded.approved,
	beneficiary = excluded.beneficiary,
	valuation = excluded.valuation,
	deposit = excluded.deposit,
	last_collection_time = excluded.last_collection_time,
	last_transfer_time = excluded.last_transfer_time,
	tax_collected_since_last_transfer = excluded.tax_collected_since_last_transfer,
	total_tax_collected = excluded.total_tax_collected,
	wrapped_contract = excluded.wrapped_contract,
	wrapped_token_id = excluded.wrapped_token_id,
	version = excluded.version`

	insertTitleTransferQuery = `
INSERT INTO title_transfer (asset_id, seq, from_owner, to_owner, valuation, transferred_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (asset_id, seq) DO NOTHING`

	selectAssetQuery = `
SELECT
	id, custodian, owner, approved, beneficiary, valuation, deposit,
	tax_numerator, tax_period, last_collection_time, last_transfer_time,
	tax_collected_since_last_transfer, total_tax_collected,
	wrapped_contract, wrapped_token_id, created_at, version
FROM asset WHERE id = ?`

	selectTitleChainQuery = `
SELECT from_owner, to_owner, valuation, transferred_at
FROM title_transfer WHERE asset_id = ? ORDER BY seq`

	selectAssetIdsQuery = `SELECT id FROM asset ORDER BY created_at, id`
)

type assetRepository struct {
	db     *sql.DB
	rebind Rebind
}

func NewAssetRepository(db *sql.DB, rebind Rebind) domain.AssetRepository {
	return &assetRepository{db, rebind}
}

func (r *assetRepository) AddOrUpdateAsset(ctx context.Context, asset domain.Asset) error {
	var contract, tokenId sql.NullString
	if asset.Wrapped != nil {
		contract = sql.NullString{String: asset.Wrapped.Contract, Valid: true}
		tokenId = sql.NullString{String: asset.Wrapped.TokenId, Valid: true}
	}

	txBody := func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx, r.rebind(upsertAssetQuery),
			asset.Id, asset.Custodian, asset.Owner, asset.Approved, asset.Beneficiary,
			asset.Valuation.Dec(), asset.Deposit.Dec(),
			strconv.FormatUint(asset.TaxNumerator, 10), asset.TaxPeriod,
			asset.LastCollectionTime, asset.LastTransferTime,
			asset.TaxCollectedSinceLastTransfer.Dec(), asset.TotalTaxCollected.Dec(),
			contract, tokenId, asset.CreatedAt, int64(asset.Version),
		); err != nil {
			return fmt.Errorf("failed to upsert asset: %w", err)
		}

		for i, transfer := range asset.TitleChain {
			if _, err := tx.ExecContext(
				ctx, r.rebind(insertTitleTransferQuery),
				asset.Id, i, transfer.From, transfer.To,
				transfer.Valuation.Dec(), transfer.Timestamp,
			); err != nil {
				return fmt.Errorf("failed to insert title transfer: %w", err)
			}
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *assetRepository) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	var (
		asset                             domain.Asset
		valuation, deposit, numerator     string
		collectedSinceTransfer, collected string
		contract, tokenId                 sql.NullString
		version                           int64
	)

	if err := r.db.QueryRowContext(ctx, r.rebind(selectAssetQuery), id).Scan(
		&asset.Id, &asset.Custodian, &asset.Owner, &asset.Approved, &asset.Beneficiary,
		&valuation, &deposit, &numerator, &asset.TaxPeriod,
		&asset.LastCollectionTime, &asset.LastTransferTime,
		&collectedSinceTransfer, &collected,
		&contract, &tokenId, &asset.CreatedAt, &version,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	taxNumerator, err := strconv.ParseUint(numerator, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid tax numerator %q: %w", numerator, err)
	}
	asset.TaxNumerator = taxNumerator
	asset.Version = uint(version)

	for _, field := range []struct {
		dst *uint256.Int
		src string
	}{
		{&asset.Valuation, valuation},
		{&asset.Deposit, deposit},
		{&asset.TaxCollectedSinceLastTransfer, collectedSinceTransfer},
		{&asset.TotalTaxCollected, collected},
	} {
		if err := field.dst.SetFromDecimal(field.src); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", field.src, err)
		}
	}

	if contract.Valid {
		asset.Wrapped = &domain.WrappedToken{
			Contract: contract.String,
			TokenId:  tokenId.String,
		}
	}

	titleChain, err := r.getTitleChain(ctx, id)
	if err != nil {
		return nil, err
	}
	asset.TitleChain = titleChain

	return &asset, nil
}

func (r *assetRepository) GetAssetIds(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(selectAssetIdsQuery))
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	// nolint:errcheck
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *assetRepository) Close() {
	// nolint:errcheck
	r.db.Close()
}

func (r *assetRepository) getTitleChain(
	ctx context.Context, id string,
) ([]domain.TitleTransfer, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(selectTitleChainQuery), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get title chain: %w", err)
	}
	// nolint:errcheck
	defer rows.Close()

	titleChain := make([]domain.TitleTransfer, 0)
	for rows.Next() {
		var (
			transfer  domain.TitleTransfer
			valuation string
		)
		if err := rows.Scan(
			&transfer.From, &transfer.To, &valuation, &transfer.Timestamp,
		); err != nil {
			return nil, err
		}
		if err := transfer.Valuation.SetFromDecimal(valuation); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", valuation, err)
		}
		titleChain = append(titleChain, transfer)
	}
	return titleChain, rows.Err()
}
