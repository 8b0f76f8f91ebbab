package rails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type amountBody struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type holdRequest struct {
	Amount   amountBody        `json:"amount"`
	Capture  bool              `json:"capture"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type holdResponse struct {
	Ref        string     `json:"ref"`
	Status     string     `json:"status"`
	Amount     amountBody `json:"amount"`
	Capturable bool       `json:"capturable"`
}

type transferRequest struct {
	Destination string     `json:"destination"`
	Amount      amountBody `json:"amount"`
}

type transferResponse struct {
	Ref string `json:"ref"`
}

type captureResponse struct {
	Status string     `json:"status"`
	Amount amountBody `json:"amount"`
}

// ChargeClient talks to the card processor over HTTP.
type ChargeClient struct {
	host       string
	secret     string
	httpClient *http.Client
}

func NewChargeClient(host string, secret string, timeout int) *ChargeClient {
	client := &http.Client{
		Timeout: time.Duration(timeout * int(time.Second)),
	}
	return &ChargeClient{
		host:       host,
		secret:     secret,
		httpClient: client,
	}
}

func (c *ChargeClient) do(ctx context.Context, method, path string, idemKey string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if idemKey == "" {
		idemKey = uuid.New().String()
	}
	req.Header.Set("Idempotence-Key", idemKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRailUnavailable, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRailUnavailable, err)
	}
	switch {
	case res.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrRailUnavailable, res.StatusCode)
	case res.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", ErrRailRejected, res.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *ChargeClient) Authorize(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (string, error) {
	body := holdRequest{
		Amount:   amountBody{Value: amount.StringFixed(2), Currency: currency},
		Capture:  false,
		Metadata: metadata,
	}
	var resp holdResponse
	if err := c.do(ctx, http.MethodPost, "/v1/holds", "", body, &resp); err != nil {
		return "", err
	}
	return resp.Ref, nil
}

func (c *ChargeClient) Capture(ctx context.Context, holdRef string, idempotencyKey string) (CaptureResult, error) {
	var resp captureResponse
	if err := c.do(ctx, http.MethodPost, "/v1/holds/"+holdRef+"/capture", idempotencyKey, nil, &resp); err != nil {
		return CaptureResult{}, err
	}
	captured, err := decimal.NewFromString(resp.Amount.Value)
	if err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{CapturedAmount: captured, Status: resp.Status}, nil
}

func (c *ChargeClient) Query(ctx context.Context, holdRef string) (Hold, error) {
	var resp holdResponse
	if err := c.do(ctx, http.MethodGet, "/v1/holds/"+holdRef, "", nil, &resp); err != nil {
		return Hold{}, err
	}
	amount, err := decimal.NewFromString(resp.Amount.Value)
	if err != nil {
		return Hold{}, err
	}
	return Hold{Ref: resp.Ref, Status: resp.Status, Amount: amount, Capturable: resp.Capturable}, nil
}

func (c *ChargeClient) UpdateMetadata(ctx context.Context, holdRef string, metadata map[string]string) error {
	body := struct {
		Metadata map[string]string `json:"metadata"`
	}{metadata}
	return c.do(ctx, http.MethodPatch, "/v1/holds/"+holdRef, "", body, nil)
}

func (c *ChargeClient) Transfer(ctx context.Context, destination string, amount decimal.Decimal) (string, error) {
	body := transferRequest{
		Destination: destination,
		Amount:      amountBody{Value: amount.StringFixed(2), Currency: "USD"},
	}
	var resp transferResponse
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", "", body, &resp); err != nil {
		return "", err
	}
	return resp.Ref, nil
}
