package redisdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

const remittancePrefix = "pco:remittance:"

type heldRemittance struct {
	AssetId string `json:"asset_id"`
	Amount  string `json:"amount"`
	Trigger int    `json:"trigger"`
}

// heldRemittances are the remittances of one recipient, keyed by id.
type heldRemittances struct {
	Recipient   string                    `json:"recipient"`
	Remittances map[string]heldRemittance `json:"remittances"`
}

func (h *heldRemittances) list() ([]domain.Remittance, error) {
	if h == nil {
		return []domain.Remittance{}, nil
	}

	remittances := make([]domain.Remittance, 0, len(h.Remittances))
	for id, held := range h.Remittances {
		amount, err := uint256.FromDecimal(held.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount of remittance %s: %w", id, err)
		}
		remittances = append(remittances, domain.Remittance{
			Id:        id,
			AssetId:   held.AssetId,
			Recipient: h.Recipient,
			Amount:    *amount,
			Trigger:   domain.RemittanceTrigger(held.Trigger),
		})
	}
	sort.Slice(remittances, func(i, j int) bool {
		return remittances[i].Id < remittances[j].Id
	})
	return remittances, nil
}

type remittanceRepository struct {
	rdb         *redis.Client
	remittances *KVStore[heldRemittances]
}

func NewRemittanceRepository(config ...interface{}) (domain.RemittanceRepository, error) {
	rdb, err := newClient(config)
	if err != nil {
		return nil, err
	}
	return &remittanceRepository{
		rdb, NewRedisKVStore[heldRemittances](rdb, remittancePrefix),
	}, nil
}

func (r *remittanceRepository) GetOutstanding(
	ctx context.Context, recipient string,
) (*uint256.Int, error) {
	held, err := r.remittances.Get(ctx, recipient)
	if err != nil {
		return nil, err
	}
	remittances, err := held.list()
	if err != nil {
		return nil, err
	}
	return domain.SumRemittances(remittances)
}

func (r *remittanceRepository) Credit(
	ctx context.Context, remittance domain.Remittance,
) (*uint256.Int, error) {
	var balance *uint256.Int
	err := r.remittances.Update(ctx, remittance.Recipient, func(
		current *heldRemittances,
	) (*heldRemittances, error) {
		remittances, err := current.list()
		if err != nil {
			return nil, err
		}
		currentBalance, err := domain.SumRemittances(remittances)
		if err != nil {
			return nil, err
		}
		if current == nil {
			current = &heldRemittances{
				Recipient:   remittance.Recipient,
				Remittances: make(map[string]heldRemittance),
			}
		}
		if _, ok := current.Remittances[remittance.Id]; ok {
			balance = currentBalance
			return current, nil
		}
		if _, overflow := currentBalance.AddOverflow(
			currentBalance, &remittance.Amount,
		); overflow {
			return nil, domain.ErrAmountOverflow
		}

		current.Remittances[remittance.Id] = heldRemittance{
			AssetId: remittance.AssetId,
			Amount:  remittance.Amount.Dec(),
			Trigger: int(remittance.Trigger),
		}
		balance = currentBalance
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (r *remittanceRepository) Clear(
	ctx context.Context, recipient string,
) ([]domain.Remittance, error) {
	var remittances []domain.Remittance
	err := r.remittances.Update(ctx, recipient, func(
		current *heldRemittances,
	) (*heldRemittances, error) {
		held, err := current.list()
		if err != nil {
			return nil, err
		}
		remittances = held
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return remittances, nil
}

func (r *remittanceRepository) Close() {
	// nolint:errcheck
	r.rdb.Close()
}
