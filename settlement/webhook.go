package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/payroll"
)

// IdempotencyHeader carries the transfer's idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// Webhook posts transfers to a payment service. Any 2xx answer is a
// settled transfer; 409 Conflict means the key was already paid and is
// also treated as settled.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

var _ payroll.Settlement = (*Webhook)(nil)

func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("webhook"),
	}
}

// TransferPayload is the JSON body posted for each transfer.
type TransferPayload struct {
	Employer       string            `json:"employer"`
	Employee       string            `json:"employee"`
	Amount         string            `json:"amount"`
	Currency       string            `json:"currency"`
	PeriodStart    generic.TimePoint `json:"period_start"`
	PeriodEnd      generic.TimePoint `json:"period_end"`
	IdempotencyKey string            `json:"idempotency_key"`
}

func (w *Webhook) Transfer(ctx context.Context, t payroll.Transfer) error {
	body, err := json.Marshal(TransferPayload{
		Employer:       string(t.Employer),
		Employee:       string(t.Employee),
		Amount:         t.Amount.Value.String(),
		Currency:       string(t.Amount.Unit),
		PeriodStart:    t.Window.Start,
		PeriodEnd:      t.Window.End,
		IdempotencyKey: t.IdempotencyKey,
	})
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, t.IdempotencyKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict || resp.StatusCode/100 == 2 {
		w.logger.Debug("transfer accepted",
			zap.String("key", t.IdempotencyKey),
			zap.Int("status", resp.StatusCode))
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("payment service answered %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
}
