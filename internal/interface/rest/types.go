package restservice

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/application"
	"github.com/pco-network/pco/internal/core/domain"
	"github.com/shopspring/decimal"
)

const weiDecimals = 18

type createAssetRequest struct {
	Id           string `json:"id" binding:"required"`
	Beneficiary  string `json:"beneficiary" binding:"required"`
	TaxNumerator uint64 `json:"tax_numerator" binding:"required"`
	TaxPeriod    int64  `json:"tax_period" binding:"required"`
}

type wrapRequest struct {
	Contract     string `json:"contract" binding:"required"`
	TokenId      string `json:"token_id" binding:"required"`
	Valuation    string `json:"valuation" binding:"required"`
	Payment      string `json:"payment"`
	Beneficiary  string `json:"beneficiary" binding:"required"`
	TaxNumerator uint64 `json:"tax_numerator" binding:"required"`
	TaxPeriod    int64  `json:"tax_period" binding:"required"`
}

type takeoverRequest struct {
	NewValuation     string `json:"new_valuation" binding:"required"`
	CurrentValuation string `json:"current_valuation" binding:"required"`
	Payment          string `json:"payment"`
}

type selfAssessRequest struct {
	Valuation string `json:"valuation" binding:"required"`
}

type depositRequest struct {
	Value string `json:"value" binding:"required"`
}

type withdrawRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type setBeneficiaryRequest struct {
	Beneficiary string `json:"beneficiary" binding:"required"`
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type amount struct {
	Wei string `json:"wei"`
	Eth string `json:"eth"`
}

type remittance struct {
	Id        string `json:"id"`
	AssetId   string `json:"asset_id,omitempty"`
	Recipient string `json:"recipient"`
	Amount    amount `json:"amount"`
	Trigger   string `json:"trigger"`
	Escrowed  bool   `json:"escrowed"`
}

type remittancesResponse struct {
	Remittances []remittance `json:"remittances"`
}

type titleTransfer struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Valuation amount `json:"valuation"`
	Timestamp int64  `json:"timestamp"`
}

type wrappedToken struct {
	Contract string `json:"contract"`
	TokenId  string `json:"token_id"`
}

type assetResponse struct {
	Id                            string        `json:"id"`
	Owner                         string        `json:"owner"`
	Beneficiary                   string        `json:"beneficiary"`
	Valuation                     amount        `json:"valuation"`
	Deposit                       amount        `json:"deposit"`
	TaxNumerator                  uint64        `json:"tax_numerator"`
	TaxPeriod                     int64         `json:"tax_period"`
	LastCollectionTime            int64         `json:"last_collection_time"`
	LastTransferTime              int64         `json:"last_transfer_time"`
	TaxCollectedSinceLastTransfer amount        `json:"tax_collected_since_last_transfer"`
	TaxationCollected             amount        `json:"taxation_collected"`
	TaxOwed                       amount        `json:"tax_owed"`
	TaxOwedAt                     int64         `json:"tax_owed_at"`
	WithdrawableDeposit           amount        `json:"withdrawable_deposit"`
	Foreclosed                    bool          `json:"foreclosed"`
	ForeclosureTime               int64         `json:"foreclosure_time,omitempty"`
	Wrapped                       *wrappedToken `json:"wrapped,omitempty"`
}

type infoResponse struct {
	Custodian          string   `json:"custodian"`
	TaxDenominator     uint64   `json:"tax_denominator"`
	PaymentTimeout     int64    `json:"payment_timeout"`
	CollectionInterval int64    `json:"collection_interval"`
	Registries         []string `json:"registries"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func parseAmount(value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return v, nil
}

func toAmount(v *uint256.Int) amount {
	if v == nil {
		v = new(uint256.Int)
	}
	return amount{
		Wei: v.Dec(),
		Eth: decimal.NewFromBigInt(v.ToBig(), -weiDecimals).String(),
	}
}

func toRemittances(results []application.RemittanceResult) remittancesResponse {
	list := make([]remittance, 0, len(results))
	for _, r := range results {
		list = append(list, toRemittance(r))
	}
	return remittancesResponse{list}
}

func toRemittance(r application.RemittanceResult) remittance {
	return remittance{
		Id:        r.Id,
		AssetId:   r.AssetId,
		Recipient: r.Recipient,
		Amount:    toAmount(r.Amount),
		Trigger:   r.Trigger.String(),
		Escrowed:  r.Escrowed,
	}
}

func toTitleChain(chain []domain.TitleTransfer) []titleTransfer {
	list := make([]titleTransfer, 0, len(chain))
	for _, t := range chain {
		list = append(list, titleTransfer{
			From:      t.From,
			To:        t.To,
			Valuation: toAmount(&t.Valuation),
			Timestamp: t.Timestamp,
		})
	}
	return list
}
