package rails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type payoutItem struct {
	Recipient    string     `json:"recipient"`
	Amount       amountBody `json:"amount"`
	Note         string     `json:"note,omitempty"`
	SenderItemID string     `json:"sender_item_id"`
}

type payoutBatchRequest struct {
	SenderBatchID string       `json:"sender_batch_id"`
	Items         []payoutItem `json:"items"`
}

type payoutItemResponse struct {
	ItemID string `json:"item_id"`
	Status string `json:"status"`
}

type payoutBatchResponse struct {
	BatchID string               `json:"batch_id"`
	Status  string               `json:"status"`
	Items   []payoutItemResponse `json:"items"`
}

type recipientResponse struct {
	Recipient string `json:"recipient"`
	Verified  bool   `json:"verified"`
}

// PayoutClient talks to the batch-payout processor over HTTP.
type PayoutClient struct {
	host       string
	clientID   string
	secret     string
	httpClient *http.Client
}

func NewPayoutClient(host, clientID, secret string, timeout int) *PayoutClient {
	client := &http.Client{
		Timeout: time.Duration(timeout * int(time.Second)),
	}
	return &PayoutClient{
		host:       host,
		clientID:   clientID,
		secret:     secret,
		httpClient: client,
	}
}

func (c *PayoutClient) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.clientID, c.secret)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRailUnavailable, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRailUnavailable, err)
	}
	switch {
	case res.StatusCode >= 500:
		return raw, fmt.Errorf("%w: status %d", ErrRailUnavailable, res.StatusCode)
	case res.StatusCode >= 400:
		return raw, fmt.Errorf("%w: status %d: %s", ErrRailRejected, res.StatusCode, raw)
	}
	return raw, nil
}

// CreatePayout submits a single-item batch. clientItemID doubles as the
// rail-side dedupe key, so a crashed submission can be resolved by the
// polling sweep instead of a blind resend.
func (c *PayoutClient) CreatePayout(ctx context.Context, recipient string, amount decimal.Decimal, currency, note, clientItemID string) (PayoutResult, error) {
	body := payoutBatchRequest{
		SenderBatchID: clientItemID,
		Items: []payoutItem{
			{
				Recipient:    recipient,
				Amount:       amountBody{Value: amount.StringFixed(2), Currency: currency},
				Note:         note,
				SenderItemID: clientItemID,
			},
		},
	}

	raw, err := c.do(ctx, http.MethodPost, "/v1/payouts", body)
	if err != nil {
		return PayoutResult{}, err
	}

	var resp payoutBatchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return PayoutResult{}, err
	}
	if len(resp.Items) == 0 {
		return PayoutResult{}, fmt.Errorf("%w: empty batch response", ErrRailRejected)
	}
	return PayoutResult{
		BatchID: resp.BatchID,
		ItemID:  resp.Items[0].ItemID,
		Status:  resp.Items[0].Status,
		Raw:     raw,
	}, nil
}

func (c *PayoutClient) QueryPayout(ctx context.Context, batchID, itemID string) (string, json.RawMessage, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/payouts/"+batchID+"/items/"+itemID, nil)
	if err != nil {
		return "", nil, err
	}

	var resp payoutItemResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", nil, err
	}
	return resp.Status, raw, nil
}

func (c *PayoutClient) CheckRecipient(ctx context.Context, recipient string) (bool, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/recipients/"+recipient, nil)
	if err != nil {
		return false, err
	}

	var resp recipientResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, err
	}
	return resp.Verified, nil
}
