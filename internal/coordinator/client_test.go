package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// poolServer mimics the pool server's signed RPC endpoint.
func poolServer(t *testing.T, secret string, handle func(path string, payload []byte) interface{}) *httptest.Server {
	t.Helper()
	signer := NewSigner(secret, 10*time.Second)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		blob, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("server read error: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		payload, err := signer.Open(blob)
		if err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		resp := handle(r.URL.Path, payload)
		body, err := json.Marshal(resp)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(signer.Seal(body))
	}))
}

func TestClientPost(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string

	srv := poolServer(t, "secret", func(path string, payload []byte) interface{} {
		gotPath = path
		if err := json.Unmarshal(payload, &gotPayload); err != nil {
			t.Errorf("server unmarshal error: %v", err)
		}
		return map[string]bool{"result": true}
	})
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 10*time.Second)

	var result struct {
		Result bool `json:"result"`
	}
	err := client.Post(context.Background(), "associate_payouts", map[string]string{"currency": "LTC"}, &result)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if gotPath != "/rpc/associate_payouts" {
		t.Errorf("server path = %s, want /rpc/associate_payouts", gotPath)
	}
	if gotPayload["currency"] != "LTC" {
		t.Errorf("server payload = %v", gotPayload)
	}
	if !result.Result {
		t.Error("result.Result = false, want true")
	}
}

func TestClientPostWrongSecret(t *testing.T) {
	srv := poolServer(t, "server secret", func(string, []byte) interface{} {
		return map[string]bool{"result": true}
	})
	defer srv.Close()

	client := NewClient(srv.URL, "client secret", 10*time.Second)

	err := client.Post(context.Background(), "get_payouts", map[string]string{"currency": "LTC"}, nil)

	// The server rejects the forged request with a 403.
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Post() error = %v, want StatusError", err)
	}
	if statusErr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", statusErr.Code)
	}
}

func TestClientPostForgedResponse(t *testing.T) {
	// A server that answers with an unsigned body.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result":true}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 10*time.Second)

	err := client.Post(context.Background(), "get_payouts", map[string]string{}, nil)
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("Post() error = %v, want ErrBadSignature", err)
	}
}

func TestClientPostStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server on fire", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 10*time.Second)

	err := client.Post(context.Background(), "get_payouts", map[string]string{}, nil)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Post() error = %v, want StatusError", err)
	}
	if statusErr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", statusErr.Code)
	}
}

func TestClientUnreachable(t *testing.T) {
	// Port 1 refuses connections.
	client := NewClient("http://127.0.0.1:1", "secret", 10*time.Second)

	if err := client.Post(context.Background(), "get_payouts", map[string]string{}, nil); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Post() error = %v, want ErrUnreachable", err)
	}
	if err := client.Get(context.Background(), "/api/transaction", nil); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Get() error = %v, want ErrUnreachable", err)
	}
}

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transaction" {
			t.Errorf("path = %s, want /api/transaction", r.URL.Path)
		}
		if r.URL.Query().Get("__filter_by") == "" {
			t.Error("missing __filter_by query parameter")
		}
		io.WriteString(w, `{"objects":[{"txid":"aa","currency":"LTC"}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 10*time.Second)

	var result struct {
		Objects []struct {
			TxID     string `json:"txid"`
			Currency string `json:"currency"`
		} `json:"objects"`
	}
	err := client.Get(context.Background(), `/api/transaction?__filter_by={"confirmed":false}`, &result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if len(result.Objects) != 1 || result.Objects[0].TxID != "aa" {
		t.Errorf("result = %+v", result)
	}
}

func TestClientGetStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 10*time.Second)

	var statusErr *StatusError
	err := client.Get(context.Background(), "/api/transaction", nil)
	if !errors.As(err, &statusErr) {
		t.Fatalf("Get() error = %v, want StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", statusErr.Code)
	}
}
