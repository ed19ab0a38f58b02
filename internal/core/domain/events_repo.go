package domain

import "context"

type EventType int

const (
	EventTypeUndefined EventType = iota

	// Asset
	EventTypeAssetCreated
	EventTypeAssetWrapped
	EventTypeTransferred
	EventTypeApprovalChanged
	EventTypeLeaseTakenOver
	EventTypeTaxCollected
	EventTypeForeclosed
	EventTypeBeneficiaryUpdated
	EventTypeValuationReassessed
	EventTypeDepositMade
	EventTypeDepositWithdrawn
)

const (
	// Remittance
	EventTypeRemittanceSent EventType = iota + 100
	EventTypeRemittanceEscrowed
)

func (t EventType) String() string {
	switch t {
	case EventTypeAssetCreated:
		return "asset_created"
	case EventTypeAssetWrapped:
		return "asset_wrapped"
	case EventTypeTransferred:
		return "transferred"
	case EventTypeApprovalChanged:
		return "approval_changed"
	case EventTypeLeaseTakenOver:
		return "lease_taken_over"
	case EventTypeTaxCollected:
		return "tax_collected"
	case EventTypeForeclosed:
		return "foreclosed"
	case EventTypeBeneficiaryUpdated:
		return "beneficiary_updated"
	case EventTypeValuationReassessed:
		return "valuation_reassessed"
	case EventTypeDepositMade:
		return "deposit_made"
	case EventTypeDepositWithdrawn:
		return "deposit_withdrawn"
	case EventTypeRemittanceSent:
		return "remittance_sent"
	case EventTypeRemittanceEscrowed:
		return "remittance_escrowed"
	default:
		return "undefined"
	}
}

type Event interface {
	GetTopic() string
	GetType() EventType
}

type EventRepository interface {
	Save(ctx context.Context, topic, id string, events []Event) error
	RegisterEventsHandler(topic string, handler func(events []Event))
	ClearRegisteredHandlers(topic ...string)
	Close()
}
