package webhookgateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	webhookgateway "github.com/pco-network/pco/internal/infrastructure/payment/webhook"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	var (
		received map[string]string
		key      string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		key = r.Header.Get(webhookgateway.IdempotencyKeyHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway, err := webhookgateway.NewGateway(server.URL)
	require.NoError(t, err)
	defer gateway.Close()

	amount, err := uint256.FromDecimal("123456789012345678901234567890")
	require.NoError(t, err)

	id := uuid.NewString()
	err = gateway.Send(context.Background(), id, "alice", amount)
	require.NoError(t, err)
	require.Equal(t, id, key)
	require.Equal(t, id, received["id"])
	require.Equal(t, "alice", received["recipient"])
	require.Equal(t, "123456789012345678901234567890", received["amount"])
}

func TestSendFailure(t *testing.T) {
	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "unknown recipient", http.StatusBadRequest)
		}))
		defer server.Close()

		gateway, err := webhookgateway.NewGateway(server.URL)
		require.NoError(t, err)

		err = gateway.Send(context.Background(), uuid.NewString(), "alice", uint256.NewInt(1))
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown recipient")
		require.Equal(t, int32(1), calls.Load())
	})

	t.Run("server error is retried with the same key", func(t *testing.T) {
		var (
			calls atomic.Int32
			keys  sync.Map
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keys.Store(r.Header.Get(webhookgateway.IdempotencyKeyHeader), struct{}{})
			if calls.Add(1) < 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		gateway, err := webhookgateway.NewGateway(server.URL)
		require.NoError(t, err)

		id := uuid.NewString()
		err = gateway.Send(context.Background(), id, "alice", uint256.NewInt(1))
		require.NoError(t, err)
		require.Equal(t, int32(2), calls.Load())

		sentKeys := make([]string, 0)
		keys.Range(func(k, _ any) bool {
			sentKeys = append(sentKeys, k.(string))
			return true
		})
		require.Equal(t, []string{id}, sentKeys)
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		gateway, err := webhookgateway.NewGateway(server.URL)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.Error(t, gateway.Send(ctx, uuid.NewString(), "alice", uint256.NewInt(1)))
	})
}

func TestNewGatewayInvalidURL(t *testing.T) {
	_, err := webhookgateway.NewGateway("not a url")
	require.Error(t, err)
}
