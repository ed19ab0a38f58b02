package domain

import (
	"context"

	"github.com/holiman/uint256"
)

const RemittanceTopic = "remittance"

type RemittanceTrigger int

const (
	TriggerLeaseTakeover RemittanceTrigger = iota
	TriggerWithdrawnDeposit
	TriggerOutstandingRemittance
	TriggerTaxCollection
)

func (t RemittanceTrigger) String() string {
	switch t {
	case TriggerLeaseTakeover:
		return "lease_takeover"
	case TriggerWithdrawnDeposit:
		return "withdrawn_deposit"
	case TriggerOutstandingRemittance:
		return "outstanding_remittance"
	case TriggerTaxCollection:
		return "tax_collection"
	default:
		return "unknown"
	}
}

// Remittance is an outgoing payment owed by the ledger. Id identifies the
// payment towards the gateway and is kept when the remittance is escrowed and
// paid out again, so that a payment is never delivered twice.
type Remittance struct {
	Id        string
	AssetId   string
	Recipient string
	Amount    uint256.Int
	Trigger   RemittanceTrigger
}

type RemittanceEvent struct {
	Id   string
	Type EventType
}

func (e RemittanceEvent) GetTopic() string   { return RemittanceTopic }
func (e RemittanceEvent) GetType() EventType { return e.Type }

type RemittanceSent struct {
	RemittanceEvent
	RemittanceId string
	AssetId   string
	Recipient string
	Amount    *uint256.Int
	Trigger   RemittanceTrigger
	Timestamp int64
}

// RemittanceEscrowed is emitted when a direct payment fails and the amount is
// credited to the recipient's outstanding balance.
type RemittanceEscrowed struct {
	RemittanceEvent
	RemittanceId string
	AssetId   string
	Recipient string
	Amount    *uint256.Int
	Balance   *uint256.Int
	Trigger   RemittanceTrigger
	Reason    string
	Timestamp int64
}

// RemittanceRepository holds the remittances whose direct payment failed
// until their recipient withdraws them.
type RemittanceRepository interface {
	// GetOutstanding returns the sum of the remittances held for recipient,
	// zero for unknown recipients.
	GetOutstanding(ctx context.Context, recipient string) (*uint256.Int, error)
	// Credit stores the remittance and returns the new outstanding balance of
	// its recipient. Crediting an id that is already held is a no-op.
	Credit(ctx context.Context, remittance Remittance) (*uint256.Int, error)
	// Clear removes every remittance held for recipient and returns them
	// ordered by id.
	Clear(ctx context.Context, recipient string) ([]Remittance, error)
	Close()
}

// SumRemittances returns the total amount of the given remittances, failing
// with ErrAmountOverflow if it does not fit 256 bits.
func SumRemittances(remittances []Remittance) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, r := range remittances {
		if _, overflow := total.AddOverflow(total, &r.Amount); overflow {
			return nil, ErrAmountOverflow
		}
	}
	return total, nil
}
