package webhookgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	maxTries = 3

	IdempotencyKeyHeader = "Idempotency-Key"
)

type payout struct {
	Id        string `json:"id"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type gateway struct {
	url    string
	client *http.Client
}

// NewGateway returns a PaymentGateway posting every payout as JSON to
// payoutURL. The payout is considered delivered only on a 2xx response.
// Server errors are retried with exponential backoff until ctx expires. Every
// attempt carries the payment id in the Idempotency-Key header. The payout
// server must not pay twice for the same key.
func NewGateway(payoutURL string) (ports.PaymentGateway, error) {
	if _, err := url.ParseRequestURI(payoutURL); err != nil {
		return nil, fmt.Errorf("invalid payout url: %w", err)
	}
	return &gateway{
		url:    payoutURL,
		client: &http.Client{},
	}, nil
}

func (g *gateway) Send(
	ctx context.Context, id, recipient string, amount *uint256.Int,
) error {
	body, err := json.Marshal(payout{id, recipient, amount.Dec()})
	if err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, g.post(ctx, id, body)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(maxTries))
	return err
}

func (g *gateway) post(ctx context.Context, id string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyKeyHeader, id)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("payout rejected with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	if resp.StatusCode < 500 {
		return backoff.Permanent(err)
	}
	log.WithError(err).Debug("retrying payout")
	return err
}

func (g *gateway) Close() {
	g.client.CloseIdleConnections()
}
