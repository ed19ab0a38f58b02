package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/domain"
	"github.com/pco-network/pco/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type service struct {
	// services
	repoManager ports.RepoManager
	payments    ports.PaymentGateway
	registries  map[string]ports.ExternalRegistry
	notifier    ports.Notifier
	locker      *assetLocker
	remitter    *remitter
	watcher     *foreclosureWatcher

	// config
	custodian          string
	paymentTimeout     time.Duration
	collectionInterval time.Duration
	notifyTo           string

	now func() time.Time
}

func NewService(
	custodian string,
	paymentTimeout, collectionInterval time.Duration,
	repoManager ports.RepoManager,
	payments ports.PaymentGateway,
	scheduler ports.SchedulerService,
	registries map[string]ports.ExternalRegistry,
	notifier ports.Notifier, notifyTo string,
) (Service, error) {
	if custodian == "" {
		return nil, fmt.Errorf("missing custodian identity")
	}
	if paymentTimeout <= 0 {
		return nil, fmt.Errorf("invalid payment timeout %s", paymentTimeout)
	}
	if collectionInterval < 0 {
		return nil, fmt.Errorf("invalid collection interval %s", collectionInterval)
	}

	svc := newService(
		custodian, paymentTimeout, collectionInterval,
		repoManager, payments, scheduler, registries, time.Now,
	)

	if notifier != nil && notifyTo != "" {
		svc.notifier = notifier
		svc.notifyTo = notifyTo
		svc.registerNotificationHandlers()
	}

	return svc, nil
}

func newService(
	custodian string,
	paymentTimeout, collectionInterval time.Duration,
	repoManager ports.RepoManager,
	payments ports.PaymentGateway,
	scheduler ports.SchedulerService,
	registries map[string]ports.ExternalRegistry,
	now func() time.Time,
) *service {
	if registries == nil {
		registries = make(map[string]ports.ExternalRegistry)
	}

	svc := &service{
		repoManager:        repoManager,
		payments:           payments,
		registries:         registries,
		locker:             newAssetLocker(),
		remitter:           newRemitter(payments, repoManager, paymentTimeout, now),
		custodian:          custodian,
		paymentTimeout:     paymentTimeout,
		collectionInterval: collectionInterval,
		now:                now,
	}
	svc.watcher = newForeclosureWatcher(
		repoManager, scheduler, collectionInterval, func(ctx context.Context, id string) error {
			_, err := svc.CollectTax(ctx, id)
			return err
		},
	)
	return svc
}

func (s *service) Start() error {
	log.Debug("starting foreclosure watcher...")
	if err := s.watcher.start(); err != nil {
		return fmt.Errorf("failed to start foreclosure watcher: %w", err)
	}
	log.Debug("foreclosure watcher started")
	return nil
}

func (s *service) Stop() {
	s.watcher.stop()
	log.Debug("foreclosure watcher stopped")

	s.repoManager.Close()
	log.Debug("closed connection to db")

	s.payments.Close()
	log.Debug("closed payment gateway")
}

func (s *service) GetInfo(_ context.Context) (*ServiceInfo, error) {
	registries := make([]string, 0, len(s.registries))
	for name := range s.registries {
		registries = append(registries, name)
	}
	sort.Strings(registries)

	return &ServiceInfo{
		Custodian:          s.custodian,
		TaxDenominator:     domain.TaxDenominator,
		PaymentTimeout:     int64(s.paymentTimeout.Seconds()),
		CollectionInterval: int64(s.collectionInterval.Seconds()),
		Registries:         registries,
	}, nil
}

func (s *service) CreateAsset(
	ctx context.Context, id, beneficiary string, taxNumerator uint64, taxPeriod int64,
) (*domain.Asset, error) {
	ctx, unlock, err := s.locker.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.repoManager.Assets().GetAsset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrAssetAlreadyExists
	}

	asset, err := domain.NewAsset(
		id, s.custodian, beneficiary, taxNumerator, taxPeriod, s.now().Unix(),
	)
	if err != nil {
		return nil, err
	}

	if err := s.repoManager.Assets().AddOrUpdateAsset(ctx, *asset); err != nil {
		return nil, fmt.Errorf("failed to persist asset %s: %w", id, err)
	}
	s.publishEvents(context.WithoutCancel(ctx), asset)

	return asset, nil
}

func (s *service) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	return s.getAsset(ctx, id)
}

func (s *service) ListAssets(ctx context.Context) ([]string, error) {
	return s.repoManager.Assets().GetAssetIds(ctx)
}

func (s *service) TakeoverLease(
	ctx context.Context, id, caller string,
	newValuation, currentValuation, payment *uint256.Int,
) ([]RemittanceResult, error) {
	return s.updateAsset(ctx, id, func(asset *domain.Asset, now int64) ([]domain.Remittance, error) {
		settlement, err := asset.TakeoverLease(
			caller, orZero(newValuation), orZero(currentValuation), orZero(payment), now,
		)
		if err != nil {
			return nil, err
		}

		return []domain.Remittance{
			taxRemittance(asset.Id, settlement.Tax),
			{
				AssetId:   asset.Id,
				Recipient: settlement.Recipient,
				Amount:    settlement.Amount,
				Trigger:   domain.TriggerLeaseTakeover,
			},
			{
				AssetId:   asset.Id,
				Recipient: settlement.Beneficiary,
				Amount:    settlement.Premium,
				Trigger:   domain.TriggerLeaseTakeover,
			},
		}, nil
	})
}

func (s *service) SelfAssess(
	ctx context.Context, id, caller string, valuation *uint256.Int,
) ([]RemittanceResult, error) {
	return s.updateAsset(ctx, id, func(asset *domain.Asset, now int64) ([]domain.Remittance, error) {
		settlement, err := asset.SelfAssess(caller, orZero(valuation), now)
		if err != nil {
			return nil, err
		}
		return []domain.Remittance{taxRemittance(asset.Id, settlement)}, nil
	})
}

func (s *service) Deposit(
	ctx context.Context, id, caller string, value *uint256.Int,
) ([]RemittanceResult, error) {
	return s.updateAsset(ctx, id, func(asset *domain.Asset, now int64) ([]domain.Remittance, error) {
		settlement, err := asset.AddDeposit(caller, orZero(value), now)
		if err != nil {
			return nil, err
		}
		return []domain.Remittance{taxRemittance(asset.Id, settlement)}, nil
	})
}

func (s *service) WithdrawDeposit(
	ctx context.Context, id, caller string, amount *uint256.Int,
) ([]RemittanceResult, error) {
	return s.updateAsset(ctx, id, func(asset *domain.Asset, now int64) ([]domain.Remittance, error) {
		amount := orZero(amount)
		settlement, err := asset.WithdrawDeposit(caller, amount, now)
		if err != nil {
			return nil, err
		}

		return []domain.Remittance{
			taxRemittance(asset.Id, settlement),
			{
				AssetId:   asset.Id,
				Recipient: caller,
				Amount:    *amount,
				Trigger:   domain.TriggerWithdrawnDeposit,
			},
		}, nil
	})
}

func (s *service) Exit(ctx context.Context, id, caller string) ([]RemittanceResult, error) {
	return s.updateAsset(ctx, id, func(asset *domain.Asset, now int64) ([]domain.Remittance, error) {
		settlement, refund, err := asset.Exit(caller, now)
		if err != nil {
			return nil, err
		}

		return []domain.Remittance{
			taxRemittance(asset.Id, settlement),
			{
				AssetId:   asset.Id,
				Recipient: caller,
				Amount:    *refund,
				Trigger:   domain.TriggerWithdrawnDeposit,
			},
		}, nil
	})
}

func (s *service) CollectTax(ctx context.Context, id string) ([]RemittanceResult, error) {
	return s.updateAsset(ctx, id, func(asset *domain.Asset, now int64) ([]domain.Remittance, error) {
		settlement := asset.CollectTax(now)
		return []domain.Remittance{taxRemittance(asset.Id, settlement)}, nil
	})
}

func (s *service) SetBeneficiary(
	ctx context.Context, id, caller, beneficiary string,
) ([]RemittanceResult, error) {
	return s.updateAsset(ctx, id, func(asset *domain.Asset, now int64) ([]domain.Remittance, error) {
		settlement, err := asset.SetBeneficiary(caller, beneficiary, now)
		if err != nil {
			return nil, err
		}
		return []domain.Remittance{taxRemittance(asset.Id, settlement)}, nil
	})
}

func (s *service) TransferFrom(_ context.Context, _, _, _, _ string) error {
	return domain.ErrProhibitedTransferMethod
}

func (s *service) WithdrawOutstandingRemittance(
	ctx context.Context, recipient string,
) ([]RemittanceResult, error) {
	if recipient == "" {
		return nil, domain.ErrInvalidIdentity
	}
	return s.remitter.withdraw(ctx, recipient)
}

func (s *service) OutstandingRemittanceOf(
	ctx context.Context, recipient string,
) (*uint256.Int, error) {
	return s.remitter.outstanding(ctx, recipient)
}

// updateAsset runs update on the latest state of the asset while holding its
// lock. Nothing is persisted if update fails. Remittances are dispatched only
// after the new state has been stored.
func (s *service) updateAsset(
	ctx context.Context, id string,
	update func(asset *domain.Asset, now int64) ([]domain.Remittance, error),
) ([]RemittanceResult, error) {
	ctx, unlock, err := s.locker.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	asset, err := s.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}

	remittances, err := update(asset, s.now().Unix())
	if err != nil {
		return nil, err
	}
	if len(asset.Events()) <= 0 {
		return nil, nil
	}

	if err := s.repoManager.Assets().AddOrUpdateAsset(ctx, *asset); err != nil {
		return nil, fmt.Errorf("failed to persist asset %s: %w", id, err)
	}

	ctx = context.WithoutCancel(ctx)
	s.publishEvents(ctx, asset)

	if err := s.watcher.schedule(asset); err != nil {
		log.WithError(err).Warnf("failed to schedule tax collection for asset %s", id)
	}

	// remittances not yet sent or held are lost if the process stops here
	return s.remitter.dispatch(ctx, remittances...), nil
}

func (s *service) getAsset(ctx context.Context, id string) (*domain.Asset, error) {
	asset, err := s.repoManager.Assets().GetAsset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	if asset == nil {
		return nil, domain.ErrNonexistentToken
	}
	return asset, nil
}

func (s *service) publishEvents(ctx context.Context, asset *domain.Asset) {
	if err := s.repoManager.Events().Save(
		ctx, domain.AssetTopic, asset.Id, asset.Events(),
	); err != nil {
		log.WithError(err).Warnf("failed to publish events of asset %s", asset.Id)
	}
}

func taxRemittance(assetId string, settlement domain.TaxSettlement) domain.Remittance {
	return domain.Remittance{
		AssetId:   assetId,
		Recipient: settlement.Beneficiary,
		Amount:    settlement.Amount,
		Trigger:   domain.TriggerTaxCollection,
	}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
