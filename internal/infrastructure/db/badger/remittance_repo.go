package badgerdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const remittanceStoreDir = "remittances"

type heldRemittance struct {
	Id        string
	AssetId   string
	Recipient string `badgerhold:"index"`
	Amount    string
	Trigger   int
}

type remittanceRepository struct {
	store *badgerhold.Store
}

func NewRemittanceRepository(config ...interface{}) (domain.RemittanceRepository, error) {
	store, err := openStore(remittanceStoreDir, config...)
	if err != nil {
		return nil, err
	}
	return &remittanceRepository{store}, nil
}

func (r *remittanceRepository) GetOutstanding(
	_ context.Context, recipient string,
) (*uint256.Int, error) {
	remittances, err := r.find(recipient)
	if err != nil {
		return nil, err
	}
	return domain.SumRemittances(remittances)
}

func (r *remittanceRepository) Credit(
	_ context.Context, remittance domain.Remittance,
) (*uint256.Int, error) {
	remittances, err := r.find(remittance.Recipient)
	if err != nil {
		return nil, err
	}
	balance, err := domain.SumRemittances(remittances)
	if err != nil {
		return nil, err
	}
	for _, held := range remittances {
		if held.Id == remittance.Id {
			return balance, nil
		}
	}
	if _, overflow := balance.AddOverflow(balance, &remittance.Amount); overflow {
		return nil, domain.ErrAmountOverflow
	}

	if err := withRetry(func() error {
		return r.store.Upsert(remittance.Id, toHeldRemittance(remittance))
	}); err != nil {
		return nil, err
	}
	return balance, nil
}

func (r *remittanceRepository) Clear(
	_ context.Context, recipient string,
) ([]domain.Remittance, error) {
	remittances, err := r.find(recipient)
	if err != nil {
		return nil, err
	}
	if len(remittances) <= 0 {
		return remittances, nil
	}

	if err := withRetry(func() error {
		return r.store.DeleteMatching(
			&heldRemittance{}, badgerhold.Where("Recipient").Eq(recipient).Index("Recipient"),
		)
	}); err != nil {
		return nil, err
	}
	return remittances, nil
}

func (r *remittanceRepository) Close() {
	//nolint:all
	r.store.Close()
}

func (r *remittanceRepository) find(recipient string) ([]domain.Remittance, error) {
	var held []heldRemittance
	if err := r.store.Find(
		&held, badgerhold.Where("Recipient").Eq(recipient).Index("Recipient"),
	); err != nil {
		return nil, err
	}

	remittances := make([]domain.Remittance, 0, len(held))
	for _, h := range held {
		remittance, err := h.toRemittance()
		if err != nil {
			return nil, err
		}
		remittances = append(remittances, remittance)
	}
	sort.Slice(remittances, func(i, j int) bool {
		return remittances[i].Id < remittances[j].Id
	})
	return remittances, nil
}

func toHeldRemittance(remittance domain.Remittance) heldRemittance {
	return heldRemittance{
		Id:        remittance.Id,
		AssetId:   remittance.AssetId,
		Recipient: remittance.Recipient,
		Amount:    remittance.Amount.Dec(),
		Trigger:   int(remittance.Trigger),
	}
}

func (h heldRemittance) toRemittance() (domain.Remittance, error) {
	amount, err := uint256.FromDecimal(h.Amount)
	if err != nil {
		return domain.Remittance{}, fmt.Errorf("invalid amount of remittance %s: %w", h.Id, err)
	}
	return domain.Remittance{
		Id:        h.Id,
		AssetId:   h.AssetId,
		Recipient: h.Recipient,
		Amount:    *amount,
		Trigger:   domain.RemittanceTrigger(h.Trigger),
	}, nil
}
