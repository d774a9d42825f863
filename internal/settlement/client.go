// Package settlement talks to the external settlement service: quoting,
// order placement, status, fill readiness and secret release.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/schema"
	"github.com/rs/zerolog"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
)

// Service is the settlement surface the orchestrator depends on. The HTTP
// client below is the production implementation; tests substitute doubles.
type Service interface {
	GetQuote(ctx context.Context, params common.QuoteRequestParams) (*common.Quote, error)
	PlaceOrder(ctx context.Context, req common.PlaceOrderRequest) (*common.PlaceOrderResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) (*common.OrderStatusResponse, error)
	GetReadyToAcceptSecretFills(ctx context.Context, orderID string) (*common.ReadyToAcceptSecretFills, error)
	SubmitSecret(ctx context.Context, sub common.SecretSubmission) error
}

const (
	quotePath        = "/quoter/v1.0/quote/receive"
	submitPath       = "/relayer/v1.0/submit"
	orderStatusPath  = "/orders/v1.0/order/status/"
	readyFillsPath   = "/orders/v1.0/order/ready-to-accept-secret-fills/"
	submitSecretPath = "/orders/v1.0/order/secret"

	requestTimeout = 30 * time.Second
)

// Client is the HTTP settlement client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	encoder *schema.Encoder
	logger  zerolog.Logger
}

func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
		encoder: schema.NewEncoder(),
		logger:  logger.With().Str("component", "settlement").Logger(),
	}
}

func (c *Client) GetQuote(ctx context.Context, params common.QuoteRequestParams) (*common.Quote, error) {
	values := url.Values{}
	if err := c.encoder.Encode(params, values); err != nil {
		return nil, fmt.Errorf("failed to encode quote params: %w", err)
	}

	var quote common.Quote
	if err := c.get(ctx, quotePath+"?"+values.Encode(), &quote); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("quoteId", quote.QuoteID.String()).
		Str("recommendedPreset", string(quote.RecommendedPreset)).
		Msg("quote received")
	return &quote, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req common.PlaceOrderRequest) (*common.PlaceOrderResponse, error) {
	var rsp common.PlaceOrderResponse
	if err := c.post(ctx, submitPath, req, &rsp); err != nil {
		return nil, err
	}
	if rsp.OrderID == "" {
		return nil, fmt.Errorf("settlement accepted the order but returned no order id")
	}

	c.logger.Info().Str("orderId", rsp.OrderID).Msg("order placed")
	return &rsp, nil
}

func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*common.OrderStatusResponse, error) {
	var rsp common.OrderStatusResponse
	if err := c.get(ctx, orderStatusPath+url.PathEscape(orderID), &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// GetReadyToAcceptSecretFills returns the fill indexes awaiting secrets. A 404
// means no fills are ready yet, not an error.
func (c *Client) GetReadyToAcceptSecretFills(ctx context.Context, orderID string) (*common.ReadyToAcceptSecretFills, error) {
	var rsp common.ReadyToAcceptSecretFills
	err := c.get(ctx, readyFillsPath+url.PathEscape(orderID), &rsp)
	if err != nil {
		var httpErr *statusError
		if errors.As(err, &httpErr) && httpErr.code == http.StatusNotFound {
			return &common.ReadyToAcceptSecretFills{}, nil
		}
		return nil, err
	}
	return &rsp, nil
}

func (c *Client) SubmitSecret(ctx context.Context, sub common.SecretSubmission) error {
	if err := c.post(ctx, submitSecretPath, sub, nil); err != nil {
		return err
	}
	c.logger.Info().Str("orderId", sub.OrderID).Msg("secret submitted")
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	rsp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("settlement request failed: %w", err)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(rsp.Body, 512))
		return &statusError{code: rsp.StatusCode, path: req.URL.Path, body: string(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(rsp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode settlement response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
	path string
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("settlement %s: status %d: %s", e.path, e.code, e.body)
}
