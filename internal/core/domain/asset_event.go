package domain

import "github.com/holiman/uint256"

const AssetTopic = "asset"

type AssetEvent struct {
	Id   string
	Type EventType
}

func (e AssetEvent) GetTopic() string   { return AssetTopic }
func (e AssetEvent) GetType() EventType { return e.Type }

type AssetCreated struct {
	AssetEvent
	Custodian    string
	Beneficiary  string
	TaxNumerator uint64
	TaxPeriod    int64
	Timestamp    int64
}

type AssetWrapped struct {
	AssetEvent
	Contract  string
	TokenId   string
	Valuation *uint256.Int
	Deposit   *uint256.Int
	Timestamp int64
}

// Transferred is emitted on every ownership change, with the valuation the
// new owner holds the asset at.
type Transferred struct {
	AssetEvent
	From      string
	To        string
	Valuation *uint256.Int
	Timestamp int64
}

type ApprovalChanged struct {
	AssetEvent
	Owner    string
	Approved string
}

type LeaseTakenOver struct {
	AssetEvent
	From           string
	To             string
	Valuation      *uint256.Int
	Deposit        *uint256.Int
	PaidToPrevious *uint256.Int
	Timestamp      int64
}

type TaxCollected struct {
	AssetEvent
	Collector string
	Amount    *uint256.Int
	Timestamp int64
}

type Foreclosed struct {
	AssetEvent
	PreviousOwner string
	Timestamp     int64
}

type BeneficiaryUpdated struct {
	AssetEvent
	Previous    string
	Beneficiary string
	Timestamp   int64
}

type ValuationReassessed struct {
	AssetEvent
	Owner     string
	Previous  *uint256.Int
	Valuation *uint256.Int
	Timestamp int64
}

type DepositMade struct {
	AssetEvent
	Owner  string
	Amount *uint256.Int
}

type DepositWithdrawn struct {
	AssetEvent
	Owner  string
	Amount *uint256.Int
}
