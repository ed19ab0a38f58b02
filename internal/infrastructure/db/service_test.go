package db_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/domain"
	"github.com/pco-network/pco/internal/core/ports"
	"github.com/pco-network/pco/internal/infrastructure/db"
	"github.com/stretchr/testify/require"
)

const (
	custodian   = "custodian"
	beneficiary = "beneficiary"
	owner       = "owner"
	taker       = "taker"
)

func TestService(t *testing.T) {
	dbDir := t.TempDir()
	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "repo_manager_with_badger_stores",
			config: db.ServiceConfig{
				EventStoreType:   "watermill",
				DataStoreType:    "badger",
				EventStoreConfig: []interface{}{},
				DataStoreConfig:  []interface{}{"", nil},
			},
		},
		{
			name: "repo_manager_with_sqlite_stores",
			config: db.ServiceConfig{
				EventStoreType:   "watermill",
				DataStoreType:    "sqlite",
				EventStoreConfig: []interface{}{},
				DataStoreConfig:  []interface{}{dbDir},
			},
		},
	}

	if dsn := os.Getenv("PCO_TEST_DB_URL"); dsn != "" {
		tests = append(tests, struct {
			name   string
			config db.ServiceConfig
		}{
			name: "repo_manager_with_postgres_stores",
			config: db.ServiceConfig{
				EventStoreType:   "postgres",
				DataStoreType:    "postgres",
				EventStoreConfig: []interface{}{dsn},
				DataStoreConfig:  []interface{}{dsn},
			},
		})
	}
	if url := os.Getenv("PCO_TEST_REDIS_URL"); url != "" {
		tests = append(tests, struct {
			name   string
			config db.ServiceConfig
		}{
			name: "repo_manager_with_redis_stores",
			config: db.ServiceConfig{
				EventStoreType:   "watermill",
				DataStoreType:    "redis",
				EventStoreConfig: []interface{}{},
				DataStoreConfig:  []interface{}{url},
			},
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			defer svc.Close()

			testEventRepository(t, svc)
			testAssetRepository(t, svc)
			testRemittanceRepository(t, svc)
		})
	}
}

func TestServiceInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "unknown event store",
			config: db.ServiceConfig{
				EventStoreType:  "kafka",
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{"", nil},
			},
		},
		{
			name: "unknown data store",
			config: db.ServiceConfig{
				EventStoreType: "watermill",
				DataStoreType:  "mongo",
			},
		},
		{
			name: "missing badger logger slot",
			config: db.ServiceConfig{
				EventStoreType:  "watermill",
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{""},
			},
		},
		{
			name: "sqlite without data dir",
			config: db.ServiceConfig{
				EventStoreType:  "watermill",
				DataStoreType:   "sqlite",
				DataStoreConfig: []interface{}{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.Error(t, err)
			require.Nil(t, svc)
		})
	}
}

func testEventRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_event_repository", func(t *testing.T) {
		ctx := context.Background()
		asset := newTestAsset(t)

		wg := &sync.WaitGroup{}
		wg.Add(1)
		var received []domain.Event
		svc.Events().RegisterEventsHandler(domain.AssetTopic, func(events []domain.Event) {
			received = events
			wg.Done()
		})
		defer svc.Events().ClearRegisteredHandlers(domain.AssetTopic)

		// no handler is registered for remittance events
		err := svc.Events().Save(ctx, domain.RemittanceTopic, owner, []domain.Event{
			domain.RemittanceSent{
				RemittanceEvent: domain.RemittanceEvent{
					Id: owner, Type: domain.EventTypeRemittanceSent,
				},
				AssetId:   asset.Id,
				Recipient: owner,
				Amount:    uint256.NewInt(10),
				Trigger:   domain.TriggerTaxCollection,
				Timestamp: time.Now().Unix(),
			},
		})
		require.NoError(t, err)

		err = svc.Events().Save(ctx, domain.AssetTopic, asset.Id, asset.Events())
		require.NoError(t, err)

		waitTimeout(t, wg)
		require.Len(t, received, len(asset.Events()))
		require.Equal(t, domain.EventTypeAssetCreated, received[0].GetType())
	})
}

func testAssetRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_asset_repository", func(t *testing.T) {
		ctx := context.Background()

		asset, err := svc.Assets().GetAsset(ctx, uuid.NewString())
		require.NoError(t, err)
		require.Nil(t, asset)

		wrapped := newTestAsset(t)
		now := wrapped.CreatedAt
		err = wrapped.Wrap(
			owner, "0xcontract", "42", uint256.NewInt(1e18), uint256.NewInt(5e17), now,
		)
		require.NoError(t, err)

		unwrapped := newTestAsset(t)

		err = svc.Assets().AddOrUpdateAsset(ctx, *wrapped)
		require.NoError(t, err)
		err = svc.Assets().AddOrUpdateAsset(ctx, *unwrapped)
		require.NoError(t, err)

		ids, err := svc.Assets().GetAssetIds(ctx)
		require.NoError(t, err)
		require.Subset(t, ids, []string{wrapped.Id, unwrapped.Id})

		stored, err := svc.Assets().GetAsset(ctx, wrapped.Id)
		require.NoError(t, err)
		requireAssetEqual(t, wrapped, stored)

		stored, err = svc.Assets().GetAsset(ctx, unwrapped.Id)
		require.NoError(t, err)
		requireAssetEqual(t, unwrapped, stored)

		_, err = wrapped.TakeoverLease(
			taker, uint256.NewInt(2e18), uint256.NewInt(1e18), uint256.NewInt(3e18), now+3600,
		)
		require.NoError(t, err)
		require.Len(t, wrapped.TitleChain, 2)

		err = svc.Assets().AddOrUpdateAsset(ctx, *wrapped)
		require.NoError(t, err)

		stored, err = svc.Assets().GetAsset(ctx, wrapped.Id)
		require.NoError(t, err)
		requireAssetEqual(t, wrapped, stored)

		// updating an asset does not duplicate its id
		updatedIds, err := svc.Assets().GetAssetIds(ctx)
		require.NoError(t, err)
		require.Len(t, updatedIds, len(ids))
	})
}

func testRemittanceRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_remittance_repository", func(t *testing.T) {
		ctx := context.Background()
		recipient := uuid.NewString()

		balance, err := svc.Remittances().GetOutstanding(ctx, recipient)
		require.NoError(t, err)
		require.True(t, balance.IsZero())

		first := newTestRemittance(recipient, 100)
		second := newTestRemittance(recipient, 50)

		balance, err = svc.Remittances().Credit(ctx, first)
		require.NoError(t, err)
		require.Equal(t, uint64(100), balance.Uint64())

		balance, err = svc.Remittances().Credit(ctx, second)
		require.NoError(t, err)
		require.Equal(t, uint64(150), balance.Uint64())

		// crediting the same remittance twice is a no-op
		balance, err = svc.Remittances().Credit(ctx, first)
		require.NoError(t, err)
		require.Equal(t, uint64(150), balance.Uint64())

		balance, err = svc.Remittances().GetOutstanding(ctx, recipient)
		require.NoError(t, err)
		require.Equal(t, uint64(150), balance.Uint64())

		// balances are kept per recipient
		other, err := svc.Remittances().GetOutstanding(ctx, uuid.NewString())
		require.NoError(t, err)
		require.True(t, other.IsZero())

		cleared, err := svc.Remittances().Clear(ctx, recipient)
		require.NoError(t, err)
		require.Len(t, cleared, 2)
		expected := []domain.Remittance{first, second}
		if second.Id < first.Id {
			expected = []domain.Remittance{second, first}
		}
		for i, remittance := range cleared {
			require.Equal(t, expected[i].Id, remittance.Id)
			require.Equal(t, expected[i].AssetId, remittance.AssetId)
			require.Equal(t, recipient, remittance.Recipient)
			require.Equal(t, expected[i].Trigger, remittance.Trigger)
			require.True(t, expected[i].Amount.Eq(&remittance.Amount))
		}

		balance, err = svc.Remittances().GetOutstanding(ctx, recipient)
		require.NoError(t, err)
		require.True(t, balance.IsZero())

		cleared, err = svc.Remittances().Clear(ctx, recipient)
		require.NoError(t, err)
		require.Empty(t, cleared)

		capped := newTestRemittance(recipient, 0)
		capped.Amount.Set(domain.MaxValuation)
		_, err = svc.Remittances().Credit(ctx, capped)
		require.NoError(t, err)

		large := newTestRemittance(recipient, 0)
		large.Amount.Lsh(uint256.NewInt(1), 255)
		_, err = svc.Remittances().Credit(ctx, large)
		require.NoError(t, err)

		overflowing := newTestRemittance(recipient, 0)
		overflowing.Amount.Lsh(uint256.NewInt(1), 255)
		_, err = svc.Remittances().Credit(ctx, overflowing)
		require.ErrorIs(t, err, domain.ErrAmountOverflow)
	})
}

func newTestRemittance(recipient string, amount uint64) domain.Remittance {
	remittance := domain.Remittance{
		Id:        uuid.NewString(),
		AssetId:   uuid.NewString(),
		Recipient: recipient,
		Trigger:   domain.TriggerLeaseTakeover,
	}
	remittance.Amount.SetUint64(amount)
	return remittance
}

func newTestAsset(t *testing.T) *domain.Asset {
	asset, err := domain.NewAsset(
		uuid.NewString(), custodian, beneficiary, 100_000_000_000, 365*24*3600,
		time.Now().Unix(),
	)
	require.NoError(t, err)
	return asset
}

func requireAssetEqual(t *testing.T, expected, got *domain.Asset) {
	require.NotNil(t, got)
	require.Equal(t, expected.Id, got.Id)
	require.Equal(t, expected.Custodian, got.Custodian)
	require.Equal(t, expected.Owner, got.Owner)
	require.Equal(t, expected.Approved, got.Approved)
	require.Equal(t, expected.Beneficiary, got.Beneficiary)
	require.True(t, expected.Valuation.Eq(&got.Valuation))
	require.True(t, expected.Deposit.Eq(&got.Deposit))
	require.Equal(t, expected.TaxNumerator, got.TaxNumerator)
	require.Equal(t, expected.TaxPeriod, got.TaxPeriod)
	require.Equal(t, expected.LastCollectionTime, got.LastCollectionTime)
	require.Equal(t, expected.LastTransferTime, got.LastTransferTime)
	require.True(t, expected.TaxCollectedSinceLastTransfer.Eq(&got.TaxCollectedSinceLastTransfer))
	require.True(t, expected.TotalTaxCollected.Eq(&got.TotalTaxCollected))
	require.Equal(t, expected.Wrapped, got.Wrapped)
	require.Equal(t, expected.CreatedAt, got.CreatedAt)
	require.Equal(t, expected.Version, got.Version)

	require.Len(t, got.TitleChain, len(expected.TitleChain))
	for i, transfer := range expected.TitleChain {
		require.Equal(t, transfer, got.TitleChain[i])
	}
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for events")
	}
}
