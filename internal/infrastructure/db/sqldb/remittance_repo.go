package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/domain"
)

const (
	selectHeldRemittancesQuery = `
SELECT id, asset_id, recipient, amount, trigger_type
FROM held_remittance WHERE recipient = ? ORDER BY id`

	insertHeldRemittanceQuery = `
INSERT INTO held_remittance (id, asset_id, recipient, amount, trigger_type)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

	deleteHeldRemittancesQuery = `DELETE FROM held_remittance WHERE recipient = ?`
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type remittanceRepository struct {
	db     *sql.DB
	rebind Rebind
}

func NewRemittanceRepository(db *sql.DB, rebind Rebind) domain.RemittanceRepository {
	return &remittanceRepository{db, rebind}
}

func (r *remittanceRepository) GetOutstanding(
	ctx context.Context, recipient string,
) (*uint256.Int, error) {
	remittances, err := r.find(ctx, r.db, recipient)
	if err != nil {
		return nil, err
	}
	return domain.SumRemittances(remittances)
}

func (r *remittanceRepository) Credit(
	ctx context.Context, remittance domain.Remittance,
) (*uint256.Int, error) {
	var balance *uint256.Int
	txBody := func(tx *sql.Tx) error {
		remittances, err := r.find(ctx, tx, remittance.Recipient)
		if err != nil {
			return err
		}
		current, err := domain.SumRemittances(remittances)
		if err != nil {
			return err
		}
		for _, held := range remittances {
			if held.Id == remittance.Id {
				balance = current
				return nil
			}
		}
		if _, overflow := current.AddOverflow(current, &remittance.Amount); overflow {
			return domain.ErrAmountOverflow
		}

		if _, err := tx.ExecContext(
			ctx, r.rebind(insertHeldRemittanceQuery),
			remittance.Id, remittance.AssetId, remittance.Recipient,
			remittance.Amount.Dec(), int(remittance.Trigger),
		); err != nil {
			return fmt.Errorf("failed to credit outstanding remittance: %w", err)
		}
		balance = current
		return nil
	}

	if err := execTx(ctx, r.db, txBody); err != nil {
		return nil, err
	}
	return balance, nil
}

func (r *remittanceRepository) Clear(
	ctx context.Context, recipient string,
) ([]domain.Remittance, error) {
	var remittances []domain.Remittance
	txBody := func(tx *sql.Tx) error {
		held, err := r.find(ctx, tx, recipient)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(
			ctx, r.rebind(deleteHeldRemittancesQuery), recipient,
		); err != nil {
			return fmt.Errorf("failed to clear outstanding remittance: %w", err)
		}
		remittances = held
		return nil
	}

	if err := execTx(ctx, r.db, txBody); err != nil {
		return nil, err
	}
	return remittances, nil
}

func (r *remittanceRepository) Close() {
	// nolint:errcheck
	r.db.Close()
}

func (r *remittanceRepository) find(
	ctx context.Context, q querier, recipient string,
) ([]domain.Remittance, error) {
	rows, err := q.QueryContext(ctx, r.rebind(selectHeldRemittancesQuery), recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to get outstanding remittance: %w", err)
	}
	defer rows.Close()

	remittances := make([]domain.Remittance, 0)
	for rows.Next() {
		var (
			remittance domain.Remittance
			amount     string
			trigger    int
		)
		if err := rows.Scan(
			&remittance.Id, &remittance.AssetId, &remittance.Recipient, &amount, &trigger,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outstanding remittance: %w", err)
		}
		value, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount of remittance %s: %w", remittance.Id, err)
		}
		remittance.Amount = *value
		remittance.Trigger = domain.RemittanceTrigger(trigger)
		remittances = append(remittances, remittance)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return remittances, nil
}
