package domain

import "errors"

var (
	ErrNonexistentToken          = errors.New("asset does not exist")
	ErrOnlyOwner                 = errors.New("caller is not the owner of the asset")
	ErrBeneficiaryOnly           = errors.New("caller is not the beneficiary of the asset")
	ErrZeroValuation             = errors.New("valuation must be greater than zero")
	ErrIncorrectCurrentValuation = errors.New("claimed current valuation does not match the asset valuation")
	ErrValuationBelowCurrent     = errors.New("new valuation must not be lower than the current one")
	ErrLacksSurplusValue         = errors.New("payment does not cover the new valuation")
	ErrAlreadyOwner              = errors.New("caller already owns the asset")
	ErrSameValuation             = errors.New("new valuation must differ from the current one")
	ErrExcessiveWithdrawal       = errors.New("withdrawal exceeds the available deposit")
	ErrNoOutstandingRemittance   = errors.New("no outstanding remittance for recipient")
	ErrProhibitedTransferMethod  = errors.New("direct transfers are not allowed, take over the lease instead")
	ErrProhibitedValue           = errors.New("payment must be zero when the beneficiary takes over a foreclosed asset")
	ErrProhibitedSurplusValue    = errors.New("beneficiary payment must equal the new valuation")

	ErrValuationTooHigh   = errors.New("valuation exceeds the maximum supported amount")
	ErrAmountOverflow     = errors.New("amount overflow")
	ErrInvalidIdentity    = errors.New("identity must not be empty")
	ErrInvalidTaxRate     = errors.New("tax numerator and period must be greater than zero")
	ErrInvalidTimestamp   = errors.New("timestamp is in the future")
	ErrAssetAlreadyExists = errors.New("asset already exists")
	ErrAlreadyWrapped     = errors.New("external token is already wrapped")
	ErrNotTokenOwner      = errors.New("caller does not own the external token")
	ErrUnknownRegistry    = errors.New("unknown external registry")
	ErrReentrantCall      = errors.New("reentrant call on an asset already being processed")
)
