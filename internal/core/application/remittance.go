package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/domain"
	"github.com/pco-network/pco/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// remitter pays out what the ledger owes. A payment that fails for any
// reason, or that is not confirmed within the payment timeout, is held in the
// recipient's outstanding balance, so that the operation that triggered it
// never fails or stalls because of the recipient. Held remittances keep their
// id and are sent again under it on withdrawal.
type remitter struct {
	payments    ports.PaymentGateway
	repoManager ports.RepoManager
	timeout     time.Duration
	now         func() time.Time

	// guards the outstanding balances
	lock *sync.Mutex
}

func newRemitter(
	payments ports.PaymentGateway, repoManager ports.RepoManager,
	timeout time.Duration, now func() time.Time,
) *remitter {
	return &remitter{
		payments:    payments,
		repoManager: repoManager,
		timeout:     timeout,
		now:         now,
		lock:        &sync.Mutex{},
	}
}

func (r *remitter) dispatch(
	ctx context.Context, remittances ...domain.Remittance,
) []RemittanceResult {
	results := make([]RemittanceResult, 0, len(remittances))
	for _, remittance := range remittances {
		if remittance.Amount.IsZero() {
			continue
		}
		if remittance.Id == "" {
			remittance.Id = uuid.NewString()
		}
		results = append(results, r.remit(ctx, remittance))
	}
	return results
}

func (r *remitter) remit(
	ctx context.Context, remittance domain.Remittance,
) RemittanceResult {
	amount := new(uint256.Int).Set(&remittance.Amount)
	result := RemittanceResult{
		Id:        remittance.Id,
		AssetId:   remittance.AssetId,
		Recipient: remittance.Recipient,
		Amount:    amount,
		Trigger:   remittance.Trigger,
	}

	err := r.send(ctx, remittance)
	if err == nil {
		r.publish(ctx, remittance.Recipient, domain.RemittanceSent{
			RemittanceEvent: domain.RemittanceEvent{
				Id: remittance.Recipient, Type: domain.EventTypeRemittanceSent,
			},
			RemittanceId: remittance.Id,
			AssetId:      remittance.AssetId,
			Recipient:    remittance.Recipient,
			Amount:       new(uint256.Int).Set(amount),
			Trigger:      remittance.Trigger,
			Timestamp:    r.now().Unix(),
		})
		return result
	}

	log.WithError(err).Warnf(
		"failed to remit %s to %s (%s), crediting outstanding balance",
		amount.Dec(), remittance.Recipient, remittance.Trigger,
	)
	result.Escrowed = true

	balance, escrowErr := r.credit(ctx, remittance)
	if escrowErr != nil {
		log.WithError(escrowErr).Errorf(
			"failed to credit %s to outstanding balance of %s",
			amount.Dec(), remittance.Recipient,
		)
		return result
	}

	r.publish(ctx, remittance.Recipient, domain.RemittanceEscrowed{
		RemittanceEvent: domain.RemittanceEvent{
			Id: remittance.Recipient, Type: domain.EventTypeRemittanceEscrowed,
		},
		RemittanceId: remittance.Id,
		AssetId:      remittance.AssetId,
		Recipient:    remittance.Recipient,
		Amount:       new(uint256.Int).Set(amount),
		Balance:      balance,
		Trigger:      remittance.Trigger,
		Reason:       err.Error(),
		Timestamp:    r.now().Unix(),
	})
	return result
}

// send gives up once the payment timeout expires, whether or not the gateway
// returns. A payment delivered late is deduplicated by its id when the held
// remittance is sent again.
func (r *remitter) send(ctx context.Context, remittance domain.Remittance) error {
	payCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.payments.Send(
			payCtx, remittance.Id, remittance.Recipient,
			new(uint256.Int).Set(&remittance.Amount),
		)
	}()

	select {
	case err := <-errCh:
		return err
	case <-payCtx.Done():
		return fmt.Errorf(
			"payment %s not confirmed in time: %w", remittance.Id, payCtx.Err(),
		)
	}
}

func (r *remitter) credit(
	ctx context.Context, remittance domain.Remittance,
) (*uint256.Int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.repoManager.Remittances().Credit(ctx, remittance)
}

// withdraw takes every remittance held for recipient out of the ledger before
// paying them out again. The lock is released before the payments so that a
// failure can be credited back.
func (r *remitter) withdraw(
	ctx context.Context, recipient string,
) ([]RemittanceResult, error) {
	r.lock.Lock()
	remittances, err := r.repoManager.Remittances().Clear(ctx, recipient)
	r.lock.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to clear outstanding remittance: %w", err)
	}
	if len(remittances) <= 0 {
		return nil, domain.ErrNoOutstandingRemittance
	}

	results := make([]RemittanceResult, 0, len(remittances))
	for _, remittance := range remittances {
		remittance.Trigger = domain.TriggerOutstandingRemittance
		results = append(results, r.remit(ctx, remittance))
	}
	return results, nil
}

func (r *remitter) outstanding(
	ctx context.Context, recipient string,
) (*uint256.Int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.repoManager.Remittances().GetOutstanding(ctx, recipient)
}

func (r *remitter) publish(ctx context.Context, recipient string, event domain.Event) {
	if err := r.repoManager.Events().Save(
		ctx, domain.RemittanceTopic, recipient, []domain.Event{event},
	); err != nil {
		log.WithError(err).Warn("failed to publish remittance event")
	}
}
