package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the thin HTTP client behind mgnctl.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a structured rejection from the server, as opposed to a
// transport failure. Callers use the distinction to decide whether a write
// is worth queueing for replay.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api status %d", e.Status)
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) CreateCompany(ctx context.Context, name string, depositCredits float64, totalShares int64, sharePriceCredits float64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/companies", map[string]any{
		"name":                    name,
		"initial_deposit_credits": depositCredits,
		"total_shares":            totalShares,
		"share_price_credits":     sharePriceCredits,
	}, &out, idem)
	return out, err
}

func (c *Client) ListCompanies(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/companies", nil, &out, "")
	return out, err
}

func (c *Client) CompanyDetail(ctx context.Context, companyID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/companies/"+url.PathEscape(companyID), nil, &out, "")
	return out, err
}

func (c *Client) CompanyPrices(ctx context.Context, companyID string, limit int) (map[string]any, error) {
	path := fmt.Sprintf("/v1/companies/%s/prices?limit=%d", url.PathEscape(companyID), limit)
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out, err
}

func (c *Client) CreateProduct(ctx context.Context, companyID, name string, priceCredits float64, quality *int32, stock *int64, idem string) (map[string]any, error) {
	body := map[string]any{
		"company_id":    companyID,
		"name":          name,
		"price_credits": priceCredits,
	}
	if quality != nil {
		body["quality"] = *quality
	}
	if stock != nil {
		body["stock_units"] = *stock
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/products", body, &out, idem)
	return out, err
}

func (c *Client) ListProducts(ctx context.Context, companyID string) (map[string]any, error) {
	path := "/v1/products"
	if companyID != "" {
		path += "?company_id=" + url.QueryEscape(companyID)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out, err
}

func (c *Client) Trade(ctx context.Context, companyID, accountID, side string, shares int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/stocks/"+url.PathEscape(companyID)+"/"+side, map[string]any{
		"account_id": accountID,
		"shares":     shares,
	}, &out, idem)
	return out, err
}

func (c *Client) Transfer(ctx context.Context, fromID, toID string, amountCredits float64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/transfers", map[string]any{
		"from_account_id": fromID,
		"to_account_id":   toID,
		"amount_credits":  amountCredits,
	}, &out, idem)
	return out, err
}

func (c *Client) AccountLedger(ctx context.Context, accountID string, limit int) (map[string]any, error) {
	path := fmt.Sprintf("/v1/accounts/%s/ledger?limit=%d", url.PathEscape(accountID), limit)
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out, err
}

func (c *Client) AccountBalance(ctx context.Context, accountID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(accountID)+"/balance", nil, &out, "")
	return out, err
}

// Do issues an arbitrary request, used when replaying queued offline writes.
func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var b any
	if body != nil {
		b = body
	}
	err := c.jsonRequest(ctx, method, path, b, &out, idem)
	return out, err
}

func (c *Client) RunWave(ctx context.Context, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/waves/run", nil, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, body any, out any, idem string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
