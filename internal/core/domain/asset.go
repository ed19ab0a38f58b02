package domain

import (
	"github.com/holiman/uint256"
)

// TitleTransfer is one entry of an asset's chain of title.
type TitleTransfer struct {
	From      string
	To        string
	Valuation uint256.Int
	Timestamp int64
}

// WrappedToken references the external token held by the custodian on behalf
// of a wrapped asset.
type WrappedToken struct {
	Contract string
	TokenId  string
}

// TaxSettlement is the outcome of collecting tax on an asset. Amount is owed
// to Beneficiary.
type TaxSettlement struct {
	Beneficiary string
	Amount      uint256.Int
	Foreclosed  bool
}

// LeaseSettlement lists the funds moved by a lease takeover besides the new
// owner's deposit.
type LeaseSettlement struct {
	Tax TaxSettlement
	// Recipient receives Amount, the previous owner's remaining deposit plus
	// the claimed valuation.
	Recipient string
	Amount    uint256.Int
	// Premium is the part of the new valuation above the claimed one and is
	// owed to Beneficiary.
	Beneficiary string
	Premium     uint256.Int
}

type Asset struct {
	Id                            string
	Custodian                     string
	Owner                         string
	Approved                      string
	Beneficiary                   string
	Valuation                     uint256.Int
	Deposit                       uint256.Int
	TaxNumerator                  uint64
	TaxPeriod                     int64
	LastCollectionTime            int64
	LastTransferTime              int64
	TaxCollectedSinceLastTransfer uint256.Int
	TotalTaxCollected             uint256.Int
	TitleChain                    []TitleTransfer
	Wrapped                       *WrappedToken
	CreatedAt                     int64
	Version                       uint
	changes                       []Event
}

// NewAsset creates an asset held by the custodian at a zero valuation.
func NewAsset(
	id, custodian, beneficiary string, taxNumerator uint64, taxPeriod, now int64,
) (*Asset, error) {
	if id == "" || custodian == "" || beneficiary == "" {
		return nil, ErrInvalidIdentity
	}
	if taxNumerator == 0 || taxPeriod <= 0 {
		return nil, ErrInvalidTaxRate
	}

	a := &Asset{changes: make([]Event, 0)}
	a.raise(AssetCreated{
		AssetEvent:   AssetEvent{Id: id, Type: EventTypeAssetCreated},
		Custodian:    custodian,
		Beneficiary:  beneficiary,
		TaxNumerator: taxNumerator,
		TaxPeriod:    taxPeriod,
		Timestamp:    now,
	})
	return a, nil
}

func NewAssetFromEvents(events []Event) *Asset {
	a := &Asset{}

	for _, event := range events {
		a.on(event, true)
	}

	a.changes = append([]Event{}, events...)

	return a
}

// Wrap hands a freshly created asset, backed by an external token, to its
// first owner.
func (a *Asset) Wrap(
	owner, contract, tokenId string, valuation, deposit *uint256.Int, now int64,
) error {
	if a.Wrapped != nil {
		return ErrAlreadyWrapped
	}
	if owner == "" || owner == a.Custodian {
		return ErrInvalidIdentity
	}
	if a.Owner != a.Custodian {
		return ErrAlreadyOwner
	}
	if err := validateValuation(valuation); err != nil {
		return err
	}

	a.raise(Transferred{
		AssetEvent: a.event(EventTypeTransferred),
		From:       a.Custodian,
		To:         owner,
		Valuation:  amount(valuation),
		Timestamp:  now,
	})
	a.raise(AssetWrapped{
		AssetEvent: a.event(EventTypeAssetWrapped),
		Contract:   contract,
		TokenId:    tokenId,
		Valuation:  amount(valuation),
		Deposit:    amount(deposit),
		Timestamp:  now,
	})
	return nil
}

// CollectTax settles the tax accrued since the last collection. If the tax
// due reaches the deposit, the whole deposit is collected and the asset is
// foreclosed as of the instant the deposit ran out.
func (a *Asset) CollectTax(now int64) TaxSettlement {
	settlement := TaxSettlement{Beneficiary: a.Beneficiary}
	if !a.IsTaxable() {
		return settlement
	}
	if now < a.LastCollectionTime {
		now = a.LastCollectionTime
	}

	due := a.taxDue(now)
	if due.Lt(&a.Deposit) {
		a.raise(TaxCollected{
			AssetEvent: a.event(EventTypeTaxCollected),
			Collector:  a.Beneficiary,
			Amount:     due,
			Timestamp:  now,
		})
		settlement.Amount.Set(due)
		return settlement
	}

	foreclosedAt := now
	if delay, ok := ExhaustionDelay(
		&a.Valuation, a.TaxNumerator, a.TaxPeriod, &a.Deposit,
	); ok {
		if at := addTimestamp(a.LastCollectionTime, delay); at < now {
			foreclosedAt = at
		}
	}

	settlement.Amount.Set(&a.Deposit)
	settlement.Foreclosed = true

	a.raise(TaxCollected{
		AssetEvent: a.event(EventTypeTaxCollected),
		Collector:  a.Beneficiary,
		Amount:     amount(&a.Deposit),
		Timestamp:  foreclosedAt,
	})
	a.foreclose(foreclosedAt)
	return settlement
}

func (a *Asset) SelfAssess(
	caller string, valuation *uint256.Int, now int64,
) (TaxSettlement, error) {
	if err := a.onlyOwner(caller); err != nil {
		return TaxSettlement{}, err
	}
	if err := validateValuation(valuation); err != nil {
		return TaxSettlement{}, err
	}
	if valuation.Eq(&a.Valuation) {
		return TaxSettlement{}, ErrSameValuation
	}

	settlement := a.CollectTax(now)
	if settlement.Foreclosed {
		return settlement, ErrOnlyOwner
	}

	a.raise(ValuationReassessed{
		AssetEvent: a.event(EventTypeValuationReassessed),
		Owner:      caller,
		Previous:   amount(&a.Valuation),
		Valuation:  amount(valuation),
		Timestamp:  now,
	})
	return settlement, nil
}

func (a *Asset) AddDeposit(
	caller string, value *uint256.Int, now int64,
) (TaxSettlement, error) {
	if err := a.onlyOwner(caller); err != nil {
		return TaxSettlement{}, err
	}

	settlement := a.CollectTax(now)
	if settlement.Foreclosed {
		return settlement, ErrOnlyOwner
	}
	if _, overflow := new(uint256.Int).AddOverflow(&a.Deposit, value); overflow {
		return settlement, ErrAmountOverflow
	}

	a.raise(DepositMade{
		AssetEvent: a.event(EventTypeDepositMade),
		Owner:      caller,
		Amount:     amount(value),
	})
	return settlement, nil
}

func (a *Asset) WithdrawDeposit(
	caller string, value *uint256.Int, now int64,
) (TaxSettlement, error) {
	if err := a.onlyOwner(caller); err != nil {
		return TaxSettlement{}, err
	}

	settlement := a.CollectTax(now)
	if settlement.Foreclosed {
		return settlement, ErrOnlyOwner
	}
	if value.Gt(&a.Deposit) {
		return settlement, ErrExcessiveWithdrawal
	}

	a.raise(DepositWithdrawn{
		AssetEvent: a.event(EventTypeDepositWithdrawn),
		Owner:      caller,
		Amount:     amount(value),
	})
	return settlement, nil
}

// Exit returns the remaining deposit to the owner and hands the asset back to
// the custodian. The returned amount is owed to caller.
func (a *Asset) Exit(caller string, now int64) (TaxSettlement, *uint256.Int, error) {
	if err := a.onlyOwner(caller); err != nil {
		return TaxSettlement{}, nil, err
	}

	settlement := a.CollectTax(now)
	if settlement.Foreclosed {
		return settlement, nil, ErrOnlyOwner
	}

	refund := amount(&a.Deposit)
	if !refund.IsZero() {
		a.raise(DepositWithdrawn{
			AssetEvent: a.event(EventTypeDepositWithdrawn),
			Owner:      caller,
			Amount:     amount(refund),
		})
	}
	a.foreclose(now)
	return settlement, refund, nil
}

func (a *Asset) SetBeneficiary(
	caller, beneficiary string, now int64,
) (TaxSettlement, error) {
	if caller != a.Beneficiary {
		return TaxSettlement{}, ErrBeneficiaryOnly
	}
	if beneficiary == "" {
		return TaxSettlement{}, ErrInvalidIdentity
	}

	settlement := a.CollectTax(now)

	a.raise(BeneficiaryUpdated{
		AssetEvent:  a.event(EventTypeBeneficiaryUpdated),
		Previous:    a.Beneficiary,
		Beneficiary: beneficiary,
		Timestamp:   now,
	})
	return settlement, nil
}

// TakeoverLease moves the asset to caller, who pays claimed to the previous
// holder and becomes liable for tax on newValuation. Validation happens
// against the state before tax is settled.
func (a *Asset) TakeoverLease(
	caller string, newValuation, claimed, payment *uint256.Int, now int64,
) (*LeaseSettlement, error) {
	if caller == "" || caller == a.Custodian {
		return nil, ErrInvalidIdentity
	}
	if !claimed.Eq(&a.Valuation) {
		return nil, ErrIncorrectCurrentValuation
	}
	if newValuation.IsZero() {
		return nil, ErrZeroValuation
	}
	if newValuation.Lt(claimed) {
		return nil, ErrValuationBelowCurrent
	}
	if newValuation.Gt(MaxValuation) {
		return nil, ErrValuationTooHigh
	}

	isBeneficiary := caller == a.Beneficiary
	fromCustodian := a.Owner == a.Custodian
	if !(isBeneficiary && fromCustodian) && payment.Lt(newValuation) {
		return nil, ErrLacksSurplusValue
	}
	if caller == a.Owner {
		return nil, ErrAlreadyOwner
	}
	if isBeneficiary {
		if fromCustodian {
			if !payment.IsZero() {
				return nil, ErrProhibitedValue
			}
		} else if !payment.Eq(newValuation) {
			return nil, ErrProhibitedSurplusValue
		}
	}

	settlement := &LeaseSettlement{Beneficiary: a.Beneficiary}
	settlement.Tax = a.CollectTax(now)

	settlement.Recipient = a.Owner
	if a.Owner == a.Custodian {
		settlement.Recipient = a.Beneficiary
	}
	if _, overflow := settlement.Amount.AddOverflow(&a.Deposit, claimed); overflow {
		return nil, ErrAmountOverflow
	}

	deposit := new(uint256.Int)
	if !isBeneficiary {
		deposit.Sub(payment, newValuation)
	}
	settlement.Premium.Sub(payment, deposit)
	if settlement.Premium.Gt(claimed) {
		settlement.Premium.Sub(&settlement.Premium, claimed)
	} else {
		settlement.Premium.Clear()
	}

	previousOwner := a.Owner
	a.raise(ApprovalChanged{
		AssetEvent: a.event(EventTypeApprovalChanged),
		Owner:      previousOwner,
	})
	a.raise(Transferred{
		AssetEvent: a.event(EventTypeTransferred),
		From:       previousOwner,
		To:         caller,
		Valuation:  amount(newValuation),
		Timestamp:  now,
	})
	a.raise(LeaseTakenOver{
		AssetEvent:     a.event(EventTypeLeaseTakenOver),
		From:           previousOwner,
		To:             caller,
		Valuation:      amount(newValuation),
		Deposit:        deposit,
		PaidToPrevious: amount(&settlement.Amount),
		Timestamp:      now,
	})
	return settlement, nil
}

// IsTaxable reports whether tax accrues on the asset: it does unless the
// beneficiary or the custodian holds it.
func (a *Asset) IsTaxable() bool {
	return a.Owner != a.Beneficiary && a.Owner != a.Custodian
}

func (a *Asset) IsForeclosed() bool {
	return a.Owner == a.Custodian
}

// TaxOwed returns the tax accrued and not yet collected at now.
func (a *Asset) TaxOwed(now int64) *uint256.Int {
	if !a.IsTaxable() || now <= a.LastCollectionTime {
		return new(uint256.Int)
	}
	return a.taxDue(now)
}

// TaxOwedSince returns the tax accrued on the current valuation between since
// and now.
func (a *Asset) TaxOwedSince(since, now int64) (*uint256.Int, error) {
	if since > now {
		return nil, ErrInvalidTimestamp
	}
	return TaxDue(&a.Valuation, a.TaxNumerator, a.TaxPeriod, since, now), nil
}

// ForeclosureTime returns the instant at which the current deposit is used up.
// The boolean is false if the asset never forecloses at its current state.
func (a *Asset) ForeclosureTime() (int64, bool) {
	if !a.IsTaxable() {
		return 0, false
	}
	delay, ok := ExhaustionDelay(
		&a.Valuation, a.TaxNumerator, a.TaxPeriod, &a.Deposit,
	)
	if !ok {
		return 0, false
	}
	return addTimestamp(a.LastCollectionTime, delay), true
}

// ForeclosedAt reports whether the asset is, or would be once tax is settled
// at now, held by the custodian.
func (a *Asset) ForeclosedAt(now int64) bool {
	if a.IsForeclosed() {
		return true
	}
	if !a.IsTaxable() {
		return false
	}
	return !a.TaxOwed(now).Lt(&a.Deposit)
}

// WithdrawableDeposit returns what would remain of the deposit once tax is
// settled at now.
func (a *Asset) WithdrawableDeposit(now int64) *uint256.Int {
	owed := a.TaxOwed(now)
	if !owed.Lt(&a.Deposit) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(&a.Deposit, owed)
}

func (a *Asset) Events() []Event {
	return a.changes
}

// Clone returns a deep copy of the asset without pending events.
func (a *Asset) Clone() *Asset {
	clone := *a
	clone.TitleChain = make([]TitleTransfer, len(a.TitleChain))
	copy(clone.TitleChain, a.TitleChain)
	if a.Wrapped != nil {
		wrapped := *a.Wrapped
		clone.Wrapped = &wrapped
	}
	clone.changes = make([]Event, 0)
	return &clone
}

func (a *Asset) taxDue(now int64) *uint256.Int {
	return TaxDue(
		&a.Valuation, a.TaxNumerator, a.TaxPeriod, a.LastCollectionTime, now,
	)
}

func (a *Asset) onlyOwner(caller string) error {
	if caller == "" || caller != a.Owner || a.IsForeclosed() {
		return ErrOnlyOwner
	}
	return nil
}

func (a *Asset) foreclose(at int64) {
	previousOwner := a.Owner
	a.raise(Foreclosed{
		AssetEvent:    a.event(EventTypeForeclosed),
		PreviousOwner: previousOwner,
		Timestamp:     at,
	})
	a.raise(ApprovalChanged{
		AssetEvent: a.event(EventTypeApprovalChanged),
		Owner:      previousOwner,
	})
	a.raise(Transferred{
		AssetEvent: a.event(EventTypeTransferred),
		From:       previousOwner,
		To:         a.Custodian,
		Valuation:  new(uint256.Int),
		Timestamp:  at,
	})
}

func (a *Asset) event(eventType EventType) AssetEvent {
	return AssetEvent{Id: a.Id, Type: eventType}
}

func (a *Asset) on(event Event, replayed bool) {
	switch e := event.(type) {
	case AssetCreated:
		a.Id = e.Id
		a.Custodian = e.Custodian
		a.Owner = e.Custodian
		a.Beneficiary = e.Beneficiary
		a.TaxNumerator = e.TaxNumerator
		a.TaxPeriod = e.TaxPeriod
		a.LastCollectionTime = e.Timestamp
		a.LastTransferTime = e.Timestamp
		a.CreatedAt = e.Timestamp
		a.TitleChain = make([]TitleTransfer, 0)
	case AssetWrapped:
		a.Wrapped = &WrappedToken{Contract: e.Contract, TokenId: e.TokenId}
		setAmount(&a.Valuation, e.Valuation)
		setAmount(&a.Deposit, e.Deposit)
		a.LastCollectionTime = e.Timestamp
	case Transferred:
		a.Owner = e.To
		a.Approved = ""
		a.LastTransferTime = e.Timestamp
		a.TaxCollectedSinceLastTransfer.Clear()
		entry := TitleTransfer{From: e.From, To: e.To, Timestamp: e.Timestamp}
		setAmount(&entry.Valuation, e.Valuation)
		a.TitleChain = append(a.TitleChain, entry)
	case ApprovalChanged:
		a.Approved = e.Approved
	case LeaseTakenOver:
		setAmount(&a.Valuation, e.Valuation)
		setAmount(&a.Deposit, e.Deposit)
		a.LastCollectionTime = e.Timestamp
	case TaxCollected:
		if e.Amount != nil {
			a.Deposit.Sub(&a.Deposit, e.Amount)
			a.TaxCollectedSinceLastTransfer.Add(&a.TaxCollectedSinceLastTransfer, e.Amount)
			a.TotalTaxCollected.Add(&a.TotalTaxCollected, e.Amount)
		}
		a.LastCollectionTime = e.Timestamp
	case Foreclosed:
		a.Valuation.Clear()
	case BeneficiaryUpdated:
		a.Beneficiary = e.Beneficiary
		a.LastCollectionTime = e.Timestamp
	case ValuationReassessed:
		setAmount(&a.Valuation, e.Valuation)
	case DepositMade:
		if e.Amount != nil {
			a.Deposit.Add(&a.Deposit, e.Amount)
		}
	case DepositWithdrawn:
		if e.Amount != nil {
			a.Deposit.Sub(&a.Deposit, e.Amount)
		}
	}

	if replayed {
		a.Version++
	}
}

func (a *Asset) raise(event Event) {
	if a.changes == nil {
		a.changes = make([]Event, 0)
	}
	a.changes = append(a.changes, event)
	a.on(event, false)
}

func validateValuation(valuation *uint256.Int) error {
	if valuation.IsZero() {
		return ErrZeroValuation
	}
	if valuation.Gt(MaxValuation) {
		return ErrValuationTooHigh
	}
	return nil
}

func amount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func setAmount(dst, src *uint256.Int) {
	if src == nil {
		dst.Clear()
		return
	}
	dst.Set(src)
}
