package portone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hakwonlab/wonpay/internal/config"
	"go.uber.org/zap"
)

// APIError is a non-2xx response from the Platform API. The body is kept
// for operator logs; HTTP handlers must not echo it to clients.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portone api status %d: %s", e.Status, e.Body)
}

// IsAPIError reports whether err came from the gateway.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type Config struct {
	BaseURL   string
	APISecret string
	StoreID   string
	Timeout   time.Duration
}

// Client speaks the PortOne Platform API: paginated settlement and
// payout reads plus billing-key charges. No internal retries; callers
// own their retry policy.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(appCfg config.Config, log *zap.Logger) *Client {
	cfg := Config{
		BaseURL:   appCfg.PortOneAPIBaseURL,
		APISecret: appCfg.PortOneAPISecret,
		StoreID:   appCfg.PortOneStoreID,
		Timeout:   appCfg.PortOneTimeout,
	}
	return New(cfg, log)
}

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.Named("portone"),
	}
}

type Page struct {
	Number     int `json:"number"`
	Size       int `json:"size"`
	TotalCount int `json:"totalCount"`
}

type SettlementItem struct {
	ID               string `json:"id"`
	PartnerID        string `json:"partnerId"`
	PaymentID        string `json:"paymentId,omitempty"`
	Status           string `json:"status"`
	OrderAmount      int64  `json:"orderAmount"`
	SettlementAmount int64  `json:"settlementAmount"`
	Currency         string `json:"settlementCurrency"`
	SettlementDate   string `json:"settlementDate,omitempty"`
}

type SettlementPage struct {
	Items []SettlementItem `json:"items"`
	Page  Page             `json:"page"`
}

type PayoutItem struct {
	ID            string `json:"id"`
	PartnerID     string `json:"partnerId"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	ScheduledAt   string `json:"scheduledAt,omitempty"`
	PayoutAt      string `json:"payoutAt,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

type PayoutPage struct {
	Items []PayoutItem `json:"items"`
	Page  Page         `json:"page"`
}

// PageRequest selects one page of a timestamp-range query. Page numbers
// start at zero.
type PageRequest struct {
	Page     int
	Size     int
	From     time.Time
	Until    time.Time
	Statuses []string
}

// requestBody is the JSON the Platform API expects in the requestBody
// query parameter of list endpoints.
func (r PageRequest) requestBody() map[string]any {
	criteria := map[string]any{
		"timestampRange": map[string]any{
			"from":  r.From.UTC().Format(time.RFC3339),
			"until": r.Until.UTC().Format(time.RFC3339),
		},
	}
	filter := map[string]any{"criteria": criteria}
	if len(r.Statuses) > 0 {
		filter["statuses"] = r.Statuses
	}
	return map[string]any{
		"page": map[string]any{
			"number": r.Page,
			"size":   r.Size,
		},
		"filter": filter,
	}
}

func (c *Client) GetSettlements(ctx context.Context, req PageRequest) (*SettlementPage, error) {
	var out SettlementPage
	if err := c.getList(ctx, "/platform/partner-settlements", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPayouts(ctx context.Context, req PageRequest) (*PayoutPage, error) {
	var out PayoutPage
	if err := c.getList(ctx, "/platform/payouts", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getList(ctx context.Context, path string, req PageRequest, out any) error {
	body, err := json.Marshal(req.requestBody())
	if err != nil {
		return err
	}

	query := url.Values{}
	query.Set("requestBody", string(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	c.authorize(httpReq)

	return c.do(httpReq, out)
}

type ChargeRequest struct {
	BillingKey   string
	OrderName    string
	CustomerName string
	Amount       int64
	Currency     string
}

type ChargeResponse struct {
	Payment struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"payment"`
}

// ChargeBillingKey executes one billing-key payment under the caller's
// payment id. The payment id is the idempotency handle at the gateway.
func (c *Client) ChargeBillingKey(ctx context.Context, paymentID string, req ChargeRequest) (*ChargeResponse, error) {
	currency := req.Currency
	if currency == "" {
		currency = "KRW"
	}
	payload := map[string]any{
		"billingKey": req.BillingKey,
		"orderName":  req.OrderName,
		"customer": map[string]any{
			"name": map[string]any{"full": req.CustomerName},
		},
		"amount":   map[string]any{"total": req.Amount},
		"currency": currency,
	}
	if c.cfg.StoreID != "" {
		payload["storeId"] = c.cfg.StoreID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/payments/%s/billing-key", c.cfg.BaseURL, url.PathEscape(paymentID)),
		bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	var out ChargeResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "PortOne "+c.cfg.APISecret)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("portone request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("portone response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("portone api error",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("portone decode: %w", err)
	}
	return nil
}
