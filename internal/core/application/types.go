package application

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/domain"
)

type Service interface {
	Start() error
	Stop()
	GetInfo(ctx context.Context) (*ServiceInfo, error)

	CreateAsset(
		ctx context.Context, id, beneficiary string, taxNumerator uint64, taxPeriod int64,
	) (*domain.Asset, error)
	Wrap(ctx context.Context, req WrapRequest) (*domain.Asset, error)
	GetAsset(ctx context.Context, id string) (*domain.Asset, error)
	ListAssets(ctx context.Context) ([]string, error)

	TakeoverLease(
		ctx context.Context, id, caller string,
		newValuation, currentValuation, payment *uint256.Int,
	) ([]RemittanceResult, error)
	SelfAssess(ctx context.Context, id, caller string, valuation *uint256.Int) ([]RemittanceResult, error)
	Deposit(ctx context.Context, id, caller string, value *uint256.Int) ([]RemittanceResult, error)
	WithdrawDeposit(ctx context.Context, id, caller string, amount *uint256.Int) ([]RemittanceResult, error)
	Exit(ctx context.Context, id, caller string) ([]RemittanceResult, error)
	CollectTax(ctx context.Context, id string) ([]RemittanceResult, error)
	SetBeneficiary(ctx context.Context, id, caller, beneficiary string) ([]RemittanceResult, error)
	// TransferFrom always fails: ownership only moves through lease takeovers.
	TransferFrom(ctx context.Context, id, caller, from, to string) error

	WithdrawOutstandingRemittance(ctx context.Context, recipient string) ([]RemittanceResult, error)
	OutstandingRemittanceOf(ctx context.Context, recipient string) (*uint256.Int, error)

	AssetViews
}

// AssetViews are read-only and never mutate state; values that depend on
// time are computed as if tax were settled now.
type AssetViews interface {
	OwnerOf(ctx context.Context, id string) (string, error)
	BeneficiaryOf(ctx context.Context, id string) (string, error)
	ValuationOf(ctx context.Context, id string) (*uint256.Int, error)
	DepositOf(ctx context.Context, id string) (*uint256.Int, error)
	TaxRateOf(ctx context.Context, id string) (uint64, error)
	TaxPeriodOf(ctx context.Context, id string) (int64, error)
	LastCollectionTimeOf(ctx context.Context, id string) (int64, error)
	LastTransferTimeOf(ctx context.Context, id string) (int64, error)
	TaxOwed(ctx context.Context, id string) (*uint256.Int, int64, error)
	TaxOwedSince(ctx context.Context, id string, since int64) (*uint256.Int, error)
	Foreclosed(ctx context.Context, id string) (bool, error)
	ForeclosureTime(ctx context.Context, id string) (int64, bool, error)
	WithdrawableDeposit(ctx context.Context, id string) (*uint256.Int, error)
	TaxCollectedSinceLastTransferOf(ctx context.Context, id string) (*uint256.Int, error)
	TaxationCollected(ctx context.Context, id string) (*uint256.Int, error)
	TitleChainOf(ctx context.Context, id string) ([]domain.TitleTransfer, error)
}

type ServiceInfo struct {
	Custodian          string
	TaxDenominator     uint64
	PaymentTimeout     int64
	CollectionInterval int64
	Registries         []string
}

// WrapRequest asks to turn an external token owned by Caller into a taxed
// asset. Payment is the value attached by the caller and becomes the deposit.
type WrapRequest struct {
	Caller       string
	Contract     string
	TokenId      string
	Valuation    *uint256.Int
	Payment      *uint256.Int
	Beneficiary  string
	TaxNumerator uint64
	TaxPeriod    int64
}

// RemittanceResult reports a remittance attempted by an operation.
type RemittanceResult struct {
	Id        string
	AssetId   string
	Recipient string
	Amount    *uint256.Int
	Trigger   domain.RemittanceTrigger
	// Escrowed is true if the direct payment failed and the amount was
	// credited to the recipient's outstanding balance instead.
	Escrowed bool
}
