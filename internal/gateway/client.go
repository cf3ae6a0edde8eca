// Package gateway queries the external payment gateway for transaction status.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nikolayk812/booksettle/internal/apperrors"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 512

type Config struct {
	BaseURL   string
	ServerKey string
	Timeout   time.Duration
	MaxTries  uint
}

// statusResponse is the gateway's transaction status body.
type statusResponse struct {
	TransactionID     string              `json:"transaction_id"`
	OrderID           string              `json:"order_id"`
	TransactionStatus string              `json:"transaction_status"`
	GrossAmount       decimal.NullDecimal `json:"gross_amount"`
	StatusMessage     string              `json:"status_message,omitempty"`
}

type Client struct {
	baseURL   *url.URL
	serverKey string
	maxTries  uint
	http      *http.Client
	logger    *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("baseURL is empty")
	}
	if cfg.ServerKey == "" {
		return nil, fmt.Errorf("serverKey is empty")
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("url.Parse[%s]: %w", cfg.BaseURL, err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:   baseURL,
		serverKey: cfg.ServerKey,
		maxTries:  cfg.MaxTries,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}, nil
}

// QueryStatus asks the gateway for a transaction's status. Transport failures and
// 5xx responses are retried with exponential backoff; anything else is final.
func (c *Client) QueryStatus(ctx context.Context, providerTransactionID string) (domain.GatewayStatus, error) {
	if providerTransactionID == "" {
		return domain.GatewayStatus{}, fmt.Errorf("providerTransactionID is empty")
	}

	endpoint := c.baseURL.JoinPath("v2", providerTransactionID, "status")

	attempt := 0
	resp, err := backoff.Retry(ctx, func() (statusResponse, error) {
		attempt++
		resp, err := c.fetch(ctx, endpoint.String())
		if err != nil {
			c.logger.Warn("gateway status query failed", "method", "QueryStatus", "transaction_id", providerTransactionID,
				"attempt", attempt, "error", err)
		}
		return resp, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return domain.GatewayStatus{}, apperrors.Wrap(apperrors.CodeUpstream, "payment gateway unavailable", err)
	}

	status, err := MapStatus(resp.TransactionStatus)
	if err != nil {
		return domain.GatewayStatus{}, apperrors.Wrap(apperrors.CodeUpstream, err.Error(), err)
	}

	return domain.GatewayStatus{
		TransactionID: resp.TransactionID,
		OrderID:       resp.OrderID,
		Status:        status,
		RawStatus:     resp.TransactionStatus,
		GrossAmount:   resp.GrossAmount,
	}, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return statusResponse{}, backoff.Permanent(fmt.Errorf("http.NewRequestWithContext: %w", err))
	}

	req.SetBasicAuth(c.serverKey, "")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return statusResponse{}, backoff.Permanent(err)
		}
		return statusResponse{}, fmt.Errorf("http.Do: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		err := fmt.Errorf("unexpected status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		if res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests {
			return statusResponse{}, err
		}
		return statusResponse{}, backoff.Permanent(err)
	}

	var resp statusResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return statusResponse{}, backoff.Permanent(fmt.Errorf("json.Decode: %w", err))
	}

	return resp, nil
}

// MapStatus translates the gateway vocabulary onto the payment lattice.
func MapStatus(raw string) (domain.PaymentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "settlement", "capture", "success", "completed", "paid":
		return domain.PaymentStatusCompleted, nil
	case "pending", "authorize", "processing":
		return domain.PaymentStatusProcessing, nil
	case "deny", "failure", "failed":
		return domain.PaymentStatusFailed, nil
	case "cancel", "expire", "cancelled", "canceled":
		return domain.PaymentStatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown gateway status %q", raw)
	}
}
