package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClient_TransferSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transfers" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var p struct {
			From      string  `json:"from"`
			To        string  `json:"to"`
			Amount    float64 `json:"amount"`
			ClientRef string  `json:"client_ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if p.From != "user-1" || p.Amount != 75.25 || p.ClientRef != "ref-1" {
			t.Errorf("payload %+v", p)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"transaction_id": "tx-1", "status": "SUCCESS"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	rcpt, err := c.Transfer(context.Background(), TransferRequest{
		From: "user-1", To: "vault-1", Amount: 75.25, AssetRef: "IDR", ClientRef: "ref-1",
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if rcpt.TransactionID != "tx-1" || !rcpt.OK() {
		t.Fatalf("receipt %+v", rcpt)
	}
}

func TestHTTPClient_TransferTimeoutIsUnknownOutcome(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewHTTPClient(srv.URL, 50*time.Millisecond)
	_, err := c.Transfer(context.Background(), TransferRequest{From: "a", To: "b", Amount: 1})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if IsUnknownOutcome(err) != true {
		t.Fatalf("timeout must be an unknown outcome")
	}
}

func TestHTTPClient_TransferServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Transfer(context.Background(), TransferRequest{From: "a", To: "b", Amount: 1})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("want ErrTransient, got %v", err)
	}
	if IsUnknownOutcome(err) {
		t.Fatalf("5xx is a definite failure, not an unknown outcome")
	}
}

func TestHTTPClient_TransferRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Transfer(context.Background(), TransferRequest{From: "a", To: "b", Amount: 1})
	if err == nil || errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) {
		t.Fatalf("4xx should be a plain rejection, got %v", err)
	}
}

func TestHTTPClient_FetchBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/vault-1/balance" {
			t.Errorf("path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"account": "vault-1", "amount": 1234.56})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	bal, err := c.FetchBalance(context.Background(), "vault-1")
	if err != nil {
		t.Fatalf("FetchBalance: %v", err)
	}
	if bal.Account != "vault-1" || bal.Amount != 1234.56 {
		t.Fatalf("balance %+v", bal)
	}
}

func TestHTTPClient_FetchBalanceTimeoutIsRetryable(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewHTTPClient(srv.URL, 50*time.Millisecond)
	_, err := c.FetchBalance(context.Background(), "vault-1")
	// balance reads are idempotent, a timeout is safe to retry
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("want ErrTransient, got %v", err)
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{time.Millisecond, time.Millisecond},
		Retryable:   func(err error) bool { return errors.Is(err, ErrTransient) },
		Sleep:       func(time.Duration) {},
	}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return ErrTransient
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}

	calls = 0
	err = p.Do(context.Background(), func() error {
		calls++
		return ErrTransient
	})
	if !errors.Is(err, ErrTransient) || calls != 3 {
		t.Fatalf("exhaustion: err=%v calls=%d", err, calls)
	}

	calls = 0
	err = p.Do(context.Background(), func() error {
		calls++
		return ErrTimeout
	})
	if !errors.Is(err, ErrTimeout) || calls != 1 {
		t.Fatalf("timeout must not retry: err=%v calls=%d", err, calls)
	}

	calls = 0
	notRetryable := errors.New("schema violation")
	err = p.Do(context.Background(), func() error {
		calls++
		return notRetryable
	})
	if !errors.Is(err, notRetryable) || calls != 1 {
		t.Fatalf("non-retryable: err=%v calls=%d", err, calls)
	}
}
