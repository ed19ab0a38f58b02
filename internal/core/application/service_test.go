package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/domain"
	"github.com/pco-network/pco/internal/core/ports"
	"github.com/pco-network/pco/internal/infrastructure/db"
	inmemorygateway "github.com/pco-network/pco/internal/infrastructure/payment/inmemory"
	inmemoryregistry "github.com/pco-network/pco/internal/infrastructure/registry/inmemory"
	"github.com/stretchr/testify/require"
)

const (
	custodian     = "custodian"
	beneficiary   = "beneficiary"
	alice         = "alice"
	bob           = "bob"
	assetId       = "asset-1"
	contract      = "0xregistry"
	yearInSeconds = int64(365 * 24 * 3600)
	yearlyRate    = uint64(domain.TaxDenominator)
	t0            = int64(1_700_000_000)
)

var (
	zero   = uint256.NewInt(0)
	oneEth = uint256.NewInt(1_000_000_000_000_000_000)
	// tax accrued on 1 ETH in 10 minutes at 100% per year
	tenMinutesOfTax = domain.TaxDue(oneEth, yearlyRate, yearInSeconds, 0, 600)
)

func eth(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(oneEth, uint256.NewInt(n))
}

func add(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Add(a, b)
}

type clock struct {
	lock *sync.Mutex
	now  int64
}

func (c *clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return time.Unix(c.now, 0)
}

func (c *clock) advance(seconds int64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now += seconds
}

type scheduledTask struct {
	at   int64
	task func()
}

// recordingScheduler keeps the scheduled tasks so that tests run them
// explicitly.
type recordingScheduler struct {
	lock     *sync.Mutex
	tasks    []scheduledTask
	periodic []func()
}

func (s *recordingScheduler) Start() {}
func (s *recordingScheduler) Stop()  {}

func (s *recordingScheduler) ScheduleTaskOnce(at int64, task func()) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tasks = append(s.tasks, scheduledTask{at, task})
	return nil
}

func (s *recordingScheduler) ScheduleEvery(_ time.Duration, task func()) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.periodic = append(s.periodic, task)
	return nil
}

func (s *recordingScheduler) lastTask() (scheduledTask, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.tasks) <= 0 {
		return scheduledTask{}, false
	}
	return s.tasks[len(s.tasks)-1], true
}

type testEnv struct {
	svc       *service
	clock     *clock
	payments  inmemorygateway.Gateway
	registry  inmemoryregistry.Registry
	scheduler *recordingScheduler
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithPaymentTimeout(t, 5*time.Second)
}

func newTestEnvWithPaymentTimeout(t *testing.T, paymentTimeout time.Duration) *testEnv {
	repoManager, err := db.NewService(db.ServiceConfig{
		EventStoreType:   "watermill",
		DataStoreType:    "badger",
		EventStoreConfig: []interface{}{},
		DataStoreConfig:  []interface{}{"", nil},
	})
	require.NoError(t, err)

	env := &testEnv{
		clock:     &clock{&sync.Mutex{}, t0},
		payments:  inmemorygateway.NewGateway(),
		registry:  inmemoryregistry.NewRegistry(),
		scheduler: &recordingScheduler{lock: &sync.Mutex{}},
	}
	env.svc = newService(
		custodian, paymentTimeout, time.Hour,
		repoManager, env.payments, env.scheduler,
		map[string]ports.ExternalRegistry{contract: env.registry},
		env.clock.Now,
	)
	require.NoError(t, env.svc.Start())
	t.Cleanup(env.svc.Stop)
	return env
}

// createLeasedAsset creates an asset and lets alice take it over for 1 ETH
// with the given deposit.
func (e *testEnv) createLeasedAsset(t *testing.T, deposit *uint256.Int) {
	ctx := context.Background()
	_, err := e.svc.CreateAsset(ctx, assetId, beneficiary, yearlyRate, yearInSeconds)
	require.NoError(t, err)

	_, err = e.svc.TakeoverLease(ctx, assetId, alice, oneEth, zero, add(oneEth, deposit))
	require.NoError(t, err)
}

func TestCreateAsset(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	asset, err := env.svc.CreateAsset(ctx, assetId, beneficiary, yearlyRate, yearInSeconds)
	require.NoError(t, err)
	require.Equal(t, custodian, asset.Owner)

	_, err = env.svc.CreateAsset(ctx, assetId, beneficiary, yearlyRate, yearInSeconds)
	require.ErrorIs(t, err, domain.ErrAssetAlreadyExists)

	_, err = env.svc.CreateAsset(ctx, "asset-2", beneficiary, 0, yearInSeconds)
	require.ErrorIs(t, err, domain.ErrInvalidTaxRate)

	ids, err := env.svc.ListAssets(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{assetId}, ids)

	owner, err := env.svc.OwnerOf(ctx, assetId)
	require.NoError(t, err)
	require.Equal(t, custodian, owner)

	foreclosed, err := env.svc.Foreclosed(ctx, assetId)
	require.NoError(t, err)
	require.True(t, foreclosed)

	info, err := env.svc.GetInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, custodian, info.Custodian)
	require.Equal(t, []string{contract}, info.Registries)
}

func TestNonexistentAsset(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.OwnerOf(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNonexistentToken)
	_, _, err = env.svc.TaxOwed(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNonexistentToken)
	_, err = env.svc.CollectTax(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNonexistentToken)
	_, err = env.svc.SelfAssess(ctx, "missing", alice, oneEth)
	require.ErrorIs(t, err, domain.ErrNonexistentToken)
	_, err = env.svc.TakeoverLease(ctx, "missing", alice, oneEth, zero, oneEth)
	require.ErrorIs(t, err, domain.ErrNonexistentToken)
}

func TestTakeoverLease(t *testing.T) {
	ctx := context.Background()

	t.Run("from custodian", func(t *testing.T) {
		env := newTestEnv(t)
		env.createLeasedAsset(t, tenMinutesOfTax)

		owner, err := env.svc.OwnerOf(ctx, assetId)
		require.NoError(t, err)
		require.Equal(t, alice, owner)

		deposit, err := env.svc.DepositOf(ctx, assetId)
		require.NoError(t, err)
		require.True(t, deposit.Eq(tenMinutesOfTax))

		// the valuation paid for a foreclosed asset goes to the beneficiary
		require.True(t, env.payments.BalanceOf(beneficiary).Eq(oneEth))

		chain, err := env.svc.TitleChainOf(ctx, assetId)
		require.NoError(t, err)
		require.Len(t, chain, 1)
		require.Equal(t, custodian, chain[0].From)
		require.Equal(t, alice, chain[0].To)
	})

	t.Run("from owner", func(t *testing.T) {
		env := newTestEnv(t)
		env.createLeasedAsset(t, eth(1))
		env.clock.advance(3600)

		taxOwed, _, err := env.svc.TaxOwed(ctx, assetId)
		require.NoError(t, err)

		results, err := env.svc.TakeoverLease(ctx, assetId, bob, eth(2), oneEth, eth(3))
		require.NoError(t, err)
		require.NotEmpty(t, results)

		// alice gets back her valuation and what is left of her deposit
		aliceExpected := add(oneEth, new(uint256.Int).Sub(eth(1), taxOwed))
		require.True(t, env.payments.BalanceOf(alice).Eq(aliceExpected))
		// the beneficiary gets the tax and the increase over the claimed valuation
		require.True(t, env.payments.BalanceOf(beneficiary).Eq(add(eth(2), taxOwed)))

		deposit, err := env.svc.DepositOf(ctx, assetId)
		require.NoError(t, err)
		require.True(t, deposit.Eq(eth(1)))

		collected, err := env.svc.TaxCollectedSinceLastTransferOf(ctx, assetId)
		require.NoError(t, err)
		require.True(t, collected.IsZero())

		total, err := env.svc.TaxationCollected(ctx, assetId)
		require.NoError(t, err)
		require.True(t, total.Eq(taxOwed))

		chain, err := env.svc.TitleChainOf(ctx, assetId)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		require.Equal(t, bob, chain[1].To)
		require.True(t, chain[1].Valuation.Eq(eth(2)))
	})

	t.Run("incorrect current valuation", func(t *testing.T) {
		env := newTestEnv(t)
		env.createLeasedAsset(t, eth(1))
		env.clock.advance(3600)

		before, err := env.svc.GetAsset(ctx, assetId)
		require.NoError(t, err)

		_, err = env.svc.TakeoverLease(ctx, assetId, bob, eth(3), eth(2), eth(4))
		require.ErrorIs(t, err, domain.ErrIncorrectCurrentValuation)

		after, err := env.svc.GetAsset(ctx, assetId)
		require.NoError(t, err)
		require.Equal(t, before.Owner, after.Owner)
		require.True(t, before.Deposit.Eq(&after.Deposit))
		require.Equal(t, before.LastCollectionTime, after.LastCollectionTime)
		require.Len(t, after.TitleChain, len(before.TitleChain))
	})

	t.Run("beneficiary from custodian", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.CreateAsset(ctx, assetId, beneficiary, yearlyRate, yearInSeconds)
		require.NoError(t, err)

		results, err := env.svc.TakeoverLease(ctx, assetId, beneficiary, oneEth, zero, zero)
		require.NoError(t, err)
		require.Empty(t, results)

		owner, err := env.svc.OwnerOf(ctx, assetId)
		require.NoError(t, err)
		require.Equal(t, beneficiary, owner)
	})

	t.Run("beneficiary with surplus from owner", func(t *testing.T) {
		env := newTestEnv(t)
		env.createLeasedAsset(t, eth(1))

		_, err := env.svc.TakeoverLease(ctx, assetId, beneficiary, eth(2), oneEth, eth(3))
		require.ErrorIs(t, err, domain.ErrProhibitedSurplusValue)
	})
}

func TestSelfAssess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLeasedAsset(t, eth(1))

	_, err := env.svc.SelfAssess(ctx, assetId, alice, eth(2))
	require.NoError(t, err)

	valuation, err := env.svc.ValuationOf(ctx, assetId)
	require.NoError(t, err)
	require.True(t, valuation.Eq(eth(2)))

	chain, err := env.svc.TitleChainOf(ctx, assetId)
	require.NoError(t, err)
	require.Len(t, chain, 1)

	_, err = env.svc.SelfAssess(ctx, assetId, bob, eth(3))
	require.ErrorIs(t, err, domain.ErrOnlyOwner)

	_, err = env.svc.SelfAssess(ctx, assetId, alice, eth(2))
	require.ErrorIs(t, err, domain.ErrSameValuation)
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLeasedAsset(t, eth(1))

	_, err := env.svc.Deposit(ctx, assetId, alice, eth(1))
	require.NoError(t, err)

	deposit, err := env.svc.DepositOf(ctx, assetId)
	require.NoError(t, err)
	require.True(t, deposit.Eq(eth(2)))

	_, err = env.svc.WithdrawDeposit(ctx, assetId, alice, eth(3))
	require.ErrorIs(t, err, domain.ErrExcessiveWithdrawal)

	_, err = env.svc.WithdrawDeposit(ctx, assetId, alice, oneEth)
	require.NoError(t, err)
	require.True(t, env.payments.BalanceOf(alice).Eq(oneEth))

	env.clock.advance(600)
	withdrawable, err := env.svc.WithdrawableDeposit(ctx, assetId)
	require.NoError(t, err)

	_, err = env.svc.Exit(ctx, assetId, alice)
	require.NoError(t, err)
	require.True(t, env.payments.BalanceOf(alice).Eq(add(oneEth, withdrawable)))

	deposit, err = env.svc.DepositOf(ctx, assetId)
	require.NoError(t, err)
	require.True(t, deposit.IsZero())
}

func TestForeclosure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLeasedAsset(t, tenMinutesOfTax)

	foreclosureTime, ok, err := env.svc.ForeclosureTime(ctx, assetId)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, t0+600, foreclosureTime)

	task, ok := env.scheduler.lastTask()
	require.True(t, ok)
	require.Equal(t, foreclosureTime, task.at)

	env.clock.advance(300)
	foreclosed, err := env.svc.Foreclosed(ctx, assetId)
	require.NoError(t, err)
	require.False(t, foreclosed)

	env.clock.advance(300)
	foreclosed, err = env.svc.Foreclosed(ctx, assetId)
	require.NoError(t, err)
	require.True(t, foreclosed)

	// the scheduled collection settles the foreclosure
	task.task()

	owner, err := env.svc.OwnerOf(ctx, assetId)
	require.NoError(t, err)
	require.Equal(t, custodian, owner)

	deposit, err := env.svc.DepositOf(ctx, assetId)
	require.NoError(t, err)
	require.True(t, deposit.IsZero())

	valuation, err := env.svc.ValuationOf(ctx, assetId)
	require.NoError(t, err)
	require.True(t, valuation.IsZero())

	require.True(t, env.payments.BalanceOf(beneficiary).Eq(add(oneEth, tenMinutesOfTax)))

	_, ok, err = env.svc.ForeclosureTime(ctx, assetId)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetBeneficiary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLeasedAsset(t, eth(1))
	env.clock.advance(3600)

	taxOwed, _, err := env.svc.TaxOwed(ctx, assetId)
	require.NoError(t, err)

	_, err = env.svc.SetBeneficiary(ctx, assetId, alice, bob)
	require.ErrorIs(t, err, domain.ErrBeneficiaryOnly)

	_, err = env.svc.SetBeneficiary(ctx, assetId, beneficiary, bob)
	require.NoError(t, err)

	newBeneficiary, err := env.svc.BeneficiaryOf(ctx, assetId)
	require.NoError(t, err)
	require.Equal(t, bob, newBeneficiary)

	// tax accrued so far went to the previous beneficiary
	require.True(t, env.payments.BalanceOf(beneficiary).Eq(add(oneEth, taxOwed)))

	lastCollection, err := env.svc.LastCollectionTimeOf(ctx, assetId)
	require.NoError(t, err)
	require.Equal(t, t0+3600, lastCollection)
}

func TestTransferFrom(t *testing.T) {
	env := newTestEnv(t)
	env.createLeasedAsset(t, eth(1))

	err := env.svc.TransferFrom(context.Background(), assetId, alice, alice, bob)
	require.ErrorIs(t, err, domain.ErrProhibitedTransferMethod)
}

func TestRemittanceEscrow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLeasedAsset(t, eth(1))

	env.payments.Reject(alice)

	results, err := env.svc.TakeoverLease(ctx, assetId, bob, eth(2), oneEth, eth(3))
	require.NoError(t, err)

	owner, err := env.svc.OwnerOf(ctx, assetId)
	require.NoError(t, err)
	require.Equal(t, bob, owner)

	var escrowed *RemittanceResult
	for i := range results {
		if results[i].Recipient == alice {
			escrowed = &results[i]
		}
	}
	require.NotNil(t, escrowed)
	require.True(t, escrowed.Escrowed)
	require.Equal(t, domain.TriggerLeaseTakeover, escrowed.Trigger)

	outstanding, err := env.svc.OutstandingRemittanceOf(ctx, alice)
	require.NoError(t, err)
	require.True(t, outstanding.Eq(escrowed.Amount))
	require.True(t, env.payments.BalanceOf(alice).IsZero())

	// still rejecting, the withdrawal is credited back
	withdrawn, err := env.svc.WithdrawOutstandingRemittance(ctx, alice)
	require.NoError(t, err)
	require.Len(t, withdrawn, 1)
	require.True(t, withdrawn[0].Escrowed)
	require.Equal(t, escrowed.Id, withdrawn[0].Id)

	outstanding, err = env.svc.OutstandingRemittanceOf(ctx, alice)
	require.NoError(t, err)
	require.True(t, outstanding.Eq(escrowed.Amount))

	env.payments.Accept(alice)

	withdrawn, err = env.svc.WithdrawOutstandingRemittance(ctx, alice)
	require.NoError(t, err)
	require.Len(t, withdrawn, 1)
	require.False(t, withdrawn[0].Escrowed)
	require.Equal(t, escrowed.Id, withdrawn[0].Id)
	require.Equal(t, domain.TriggerOutstandingRemittance, withdrawn[0].Trigger)
	require.True(t, env.payments.BalanceOf(alice).Eq(escrowed.Amount))

	outstanding, err = env.svc.OutstandingRemittanceOf(ctx, alice)
	require.NoError(t, err)
	require.True(t, outstanding.IsZero())

	_, err = env.svc.WithdrawOutstandingRemittance(ctx, alice)
	require.ErrorIs(t, err, domain.ErrNoOutstandingRemittance)
}

func TestStallingRecipient(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWithPaymentTimeout(t, 100*time.Millisecond)
	env.createLeasedAsset(t, eth(1))

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	env.payments.OnReceive(alice, func(_ context.Context, _ *uint256.Int) error {
		<-release
		return nil
	})

	start := time.Now()
	results, err := env.svc.TakeoverLease(ctx, assetId, bob, eth(2), oneEth, eth(3))
	require.NoError(t, err)
	require.Less(t, time.Since(start), 2*time.Second)

	var escrowed *RemittanceResult
	for i := range results {
		if results[i].Recipient == alice {
			escrowed = &results[i]
		}
	}
	require.NotNil(t, escrowed)
	require.True(t, escrowed.Escrowed)
	require.True(t, env.payments.BalanceOf(alice).IsZero())

	outstanding, err := env.svc.OutstandingRemittanceOf(ctx, alice)
	require.NoError(t, err)
	require.True(t, outstanding.Eq(escrowed.Amount))

	// the asset is not held up by the stalling recipient
	_, err = env.svc.SelfAssess(ctx, assetId, bob, eth(3))
	require.NoError(t, err)
}

func TestReentrantCall(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLeasedAsset(t, eth(1))

	var hookErr error
	env.payments.OnReceive(alice, func(ctx context.Context, _ *uint256.Int) error {
		_, hookErr = env.svc.SelfAssess(ctx, assetId, bob, eth(5))
		return hookErr
	})

	_, err := env.svc.TakeoverLease(ctx, assetId, bob, eth(2), oneEth, eth(3))
	require.NoError(t, err)
	require.ErrorIs(t, hookErr, domain.ErrReentrantCall)

	// the payment failed, so it was escrowed
	outstanding, err := env.svc.OutstandingRemittanceOf(ctx, alice)
	require.NoError(t, err)
	require.False(t, outstanding.IsZero())

	valuation, err := env.svc.ValuationOf(ctx, assetId)
	require.NoError(t, err)
	require.True(t, valuation.Eq(eth(2)))
}

func TestWrap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.registry.Mint("7", alice))

	req := WrapRequest{
		Caller:       alice,
		Contract:     contract,
		TokenId:      "7",
		Valuation:    oneEth,
		Payment:      eth(1),
		Beneficiary:  beneficiary,
		TaxNumerator: yearlyRate,
		TaxPeriod:    yearInSeconds,
	}

	_, err := env.svc.Wrap(ctx, WrapRequest{Contract: "0xunknown"})
	require.ErrorIs(t, err, domain.ErrUnknownRegistry)

	notOwner := req
	notOwner.Caller = bob
	_, err = env.svc.Wrap(ctx, notOwner)
	require.ErrorIs(t, err, domain.ErrNotTokenOwner)

	asset, err := env.svc.Wrap(ctx, req)
	require.NoError(t, err)
	require.Equal(t, WrappedAssetId(contract, "7"), asset.Id)
	require.Equal(t, alice, asset.Owner)
	require.True(t, asset.Deposit.Eq(eth(1)))

	tokenOwner, err := env.registry.OwnerOf(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, custodian, tokenOwner)

	_, err = env.svc.Wrap(ctx, req)
	require.ErrorIs(t, err, domain.ErrAlreadyWrapped)

	_, ok := env.scheduler.lastTask()
	require.True(t, ok)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLeasedAsset(t, eth(1))

	env.scheduler.lock.Lock()
	require.Len(t, env.scheduler.periodic, 1)
	sweep := env.scheduler.periodic[0]
	env.scheduler.lock.Unlock()

	env.clock.advance(3600)
	taxOwed, _, err := env.svc.TaxOwed(ctx, assetId)
	require.NoError(t, err)
	require.False(t, taxOwed.IsZero())

	sweep()

	total, err := env.svc.TaxationCollected(ctx, assetId)
	require.NoError(t, err)
	require.True(t, total.Eq(taxOwed))

	lastCollection, err := env.svc.LastCollectionTimeOf(ctx, assetId)
	require.NoError(t, err)
	require.Equal(t, t0+3600, lastCollection)
}
