package restservice

import (
	"errors"
	"net/http"

	"github.com/pco-network/pco/internal/core/domain"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrNonexistentToken, http.StatusNotFound},

	{domain.ErrOnlyOwner, http.StatusForbidden},
	{domain.ErrBeneficiaryOnly, http.StatusForbidden},
	{domain.ErrNotTokenOwner, http.StatusForbidden},
	{domain.ErrProhibitedTransferMethod, http.StatusForbidden},

	{domain.ErrIncorrectCurrentValuation, http.StatusConflict},
	{domain.ErrAlreadyOwner, http.StatusConflict},
	{domain.ErrSameValuation, http.StatusConflict},
	{domain.ErrAssetAlreadyExists, http.StatusConflict},
	{domain.ErrAlreadyWrapped, http.StatusConflict},
	{domain.ErrNoOutstandingRemittance, http.StatusConflict},
	{domain.ErrReentrantCall, http.StatusConflict},

	{domain.ErrZeroValuation, http.StatusBadRequest},
	{domain.ErrValuationBelowCurrent, http.StatusBadRequest},
	{domain.ErrLacksSurplusValue, http.StatusBadRequest},
	{domain.ErrExcessiveWithdrawal, http.StatusBadRequest},
	{domain.ErrProhibitedValue, http.StatusBadRequest},
	{domain.ErrProhibitedSurplusValue, http.StatusBadRequest},
	{domain.ErrValuationTooHigh, http.StatusBadRequest},
	{domain.ErrAmountOverflow, http.StatusBadRequest},
	{domain.ErrInvalidIdentity, http.StatusBadRequest},
	{domain.ErrInvalidTaxRate, http.StatusBadRequest},
	{domain.ErrInvalidTimestamp, http.StatusBadRequest},
	{domain.ErrUnknownRegistry, http.StatusBadRequest},
}

func statusOf(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
