package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks to the settlement network's REST API.
type HTTPClient struct {
	base string
	hc   *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		base: baseURL,
		hc:   &http.Client{Timeout: timeout},
	}
}

type transferPayload struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	AssetRef  string  `json:"asset_ref"`
	ClientRef string  `json:"client_ref"`
}

type receiptPayload struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	body, _ := json.Marshal(transferPayload(req))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/transfers", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		// A timed-out transfer may still have settled on the network side.
		if isTimeout(err) {
			return Receipt{}, ErrTimeout
		}
		return Receipt{}, fmt.Errorf("settlement transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Receipt{}, fmt.Errorf("settlement transfer: status %d: %w", resp.StatusCode, ErrTransient)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Receipt{}, fmt.Errorf("settlement transfer rejected: status %d", resp.StatusCode)
	}

	var rp receiptPayload
	if err := json.NewDecoder(resp.Body).Decode(&rp); err != nil {
		return Receipt{}, fmt.Errorf("settlement transfer: decode receipt: %w", err)
	}
	return Receipt(rp), nil
}

func (c *HTTPClient) FetchBalance(ctx context.Context, account string) (Balance, error) {
	u := c.base + "/accounts/" + url.PathEscape(account) + "/balance"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Balance{}, err
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return Balance{}, fmt.Errorf("settlement balance: %w", ErrTransient)
		}
		return Balance{}, fmt.Errorf("settlement balance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Balance{}, fmt.Errorf("settlement balance: status %d: %w", resp.StatusCode, ErrTransient)
	}
	if resp.StatusCode != http.StatusOK {
		return Balance{}, fmt.Errorf("settlement balance: status %d", resp.StatusCode)
	}

	var b struct {
		Account string  `json:"account"`
		Amount  float64 `json:"amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return Balance{}, fmt.Errorf("settlement balance: decode: %w", err)
	}
	return Balance{Account: b.Account, Amount: b.Amount}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
