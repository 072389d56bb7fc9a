package trades

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/poolhand/payoutd/pkg/logging"
)

type postCall struct {
	path string
	body []byte
}

type fakeTransport struct {
	responses map[string]string
	postErr   map[string]error
	posts     []postCall
}

func (f *fakeTransport) Post(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.posts = append(f.posts, postCall{path: path, body: body})
	if err := f.postErr[path]; err != nil {
		return err
	}
	resp, ok := f.responses[path]
	if !ok {
		return fmt.Errorf("no canned response for %s", path)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal([]byte(resp), result)
}

func (f *fakeTransport) Get(ctx context.Context, path string, result interface{}) error {
	return errors.New("unexpected GET")
}

func newTestReconciler(t *testing.T) (*Reconciler, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{
		responses: make(map[string]string),
		postErr:   make(map[string]error),
	}
	log := logging.New(&logging.Config{Level: "fatal", Output: io.Discard})
	r := New(tr, log, "LTC")
	r.confirm = func(string) bool { return true }
	return r, tr
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestOpenRequests(t *testing.T) {
	r, tr := newTestReconciler(t)
	tr.responses["get_trade_requests"] = `{"trs":[
		[1,"LTC",100.5,"sell"],
		[2,"LTC","300","sell"],
		[3,"LTC",50,"buy"],
		[4,"DOGE",9000,"sell"]]}`

	sells, buys, err := r.OpenRequests(context.Background())
	if err != nil {
		t.Fatalf("OpenRequests() error = %v", err)
	}
	if len(sells) != 2 || len(buys) != 1 {
		t.Fatalf("got %d sells and %d buys, want 2 and 1", len(sells), len(buys))
	}
	if sells[0].ID != 1 || !sells[0].Quantity.Equal(dec("100.5")) {
		t.Errorf("first sell = %+v", sells[0])
	}
	if !sells[1].Quantity.Equal(dec("300")) {
		t.Errorf("string quantity parsed as %s", sells[1].Quantity)
	}
	if buys[0].ID != 3 || buys[0].Type != TypeBuy {
		t.Errorf("buy = %+v", buys[0])
	}
}

func TestOpenRequestsRejectsMalformedBatch(t *testing.T) {
	bad := []string{
		`{"trs":[[1,"LTC",100]]}`,                          // three fields
		`{"trs":[["one","LTC",100,"sell"]]}`,               // id not a number
		`{"trs":[[1.5,"LTC",100,"sell"]]}`,                 // id not an integer
		`{"trs":[[1,"LTC",100,"hold"]]}`,                   // unknown type
		`{"trs":[[1,"LTC","a hundred","sell"]]}`,           // unparseable quantity
		`{"trs":[[1,"LTC",-5,"sell"]]}`,                    // negative quantity
		`{"trs":[[1,"LTC",100,"sell"],[2,42,100,"sell"]]}`, // one bad poisons all
	}
	for _, resp := range bad {
		r, tr := newTestReconciler(t)
		tr.responses["get_trade_requests"] = resp

		_, _, err := r.OpenRequests(context.Background())
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("OpenRequests(%s) error = %v, want ErrMalformed", resp, err)
		}
	}
}

func TestCloseRequest(t *testing.T) {
	r, tr := newTestReconciler(t)
	tr.responses["update_trade_requests"] = `{"success":true}`

	err := r.CloseRequest(context.Background(), 7, dec("0.5"), dec("0.001"), false)
	if err != nil {
		t.Fatalf("CloseRequest() error = %v", err)
	}
	want := `{"update":true,"trs":{"7":{"status":6,"quantity":0.5,"fees":0.001}}}`
	if got := string(tr.posts[0].body); got != want {
		t.Errorf("posted %s, want %s", got, want)
	}
}

func TestCloseRequestSimulate(t *testing.T) {
	r, tr := newTestReconciler(t)

	err := r.CloseRequest(context.Background(), 7, dec("0.5"), dec("0.001"), true)
	if err != nil {
		t.Fatalf("CloseRequest() error = %v", err)
	}
	if len(tr.posts) != 0 {
		t.Error("simulate posted an update")
	}
}

func TestCloseSellRequestsProRata(t *testing.T) {
	r, tr := newTestReconciler(t)
	tr.responses["get_trade_requests"] = `{"trs":[[1,"LTC",100,"sell"],[2,"LTC",300,"sell"]]}`
	tr.responses["update_trade_requests"] = `{"success":true}`

	err := r.CloseSellRequests(context.Background(), dec("0.2"), dec("0.0004"), 0, 0, false)
	if err != nil {
		t.Fatalf("CloseSellRequests() error = %v", err)
	}

	// 100/400 and 300/400 of quantity and fees, exactly.
	want := `{"update":true,"trs":{` +
		`"1":{"status":6,"quantity":0.05,"fees":0.0001},` +
		`"2":{"status":6,"quantity":0.15,"fees":0.0003}}}`
	if got := string(tr.posts[1].body); got != want {
		t.Errorf("posted %s, want %s", got, want)
	}
}

func TestCloseSellRequestsRounding(t *testing.T) {
	r, tr := newTestReconciler(t)
	tr.responses["get_trade_requests"] = `{"trs":[[1,"LTC",1,"sell"],[2,"LTC",1,"sell"],[3,"LTC",1,"sell"]]}`
	tr.responses["update_trade_requests"] = `{"success":true}`

	err := r.CloseSellRequests(context.Background(), dec("1"), dec("0"), 0, 0, false)
	if err != nil {
		t.Fatalf("CloseSellRequests() error = %v", err)
	}
	var req struct {
		TRs map[string]struct {
			Quantity json.Number `json:"quantity"`
		} `json:"trs"`
	}
	if err := json.Unmarshal(tr.posts[1].body, &req); err != nil {
		t.Fatalf("unmarshal posted body: %v", err)
	}
	for id, entry := range req.TRs {
		if entry.Quantity.String() != "0.33333333" {
			t.Errorf("request %s quantity = %s, want 0.33333333", id, entry.Quantity)
		}
	}
}

func TestCloseSellRequestsIDRange(t *testing.T) {
	r, tr := newTestReconciler(t)
	tr.responses["get_trade_requests"] = `{"trs":[[1,"LTC",100,"sell"],[2,"LTC",100,"sell"],[3,"LTC",100,"sell"]]}`
	tr.responses["update_trade_requests"] = `{"success":true}`

	err := r.CloseSellRequests(context.Background(), dec("0.1"), dec("0"), 2, 2, false)
	if err != nil {
		t.Fatalf("CloseSellRequests() error = %v", err)
	}
	want := `{"update":true,"trs":{"2":{"status":6,"quantity":0.1,"fees":0}}}`
	if got := string(tr.posts[1].body); got != want {
		t.Errorf("posted %s, want %s", got, want)
	}
}

func TestCloseSellRequestsAborted(t *testing.T) {
	r, tr := newTestReconciler(t)
	tr.responses["get_trade_requests"] = `{"trs":[[1,"LTC",100,"sell"]]}`
	var prompted string
	r.confirm = func(prompt string) bool {
		prompted = prompt
		return false
	}

	err := r.CloseSellRequests(context.Background(), dec("0.1"), dec("0"), 0, 0, false)
	if err != nil {
		t.Fatalf("CloseSellRequests() error = %v", err)
	}
	if prompted == "" {
		t.Error("operator was never asked")
	}
	if n := len(tr.posts); n != 1 { // just the listing fetch
		t.Errorf("made %d posts after abort, want 1", n)
	}
}

func TestCloseSellRequestsSimulate(t *testing.T) {
	r, tr := newTestReconciler(t)
	tr.responses["get_trade_requests"] = `{"trs":[[1,"LTC",100,"sell"]]}`

	err := r.CloseSellRequests(context.Background(), dec("0.1"), dec("0"), 0, 0, true)
	if err != nil {
		t.Fatalf("CloseSellRequests() error = %v", err)
	}
	if n := len(tr.posts); n != 1 {
		t.Errorf("made %d posts in simulate, want 1", n)
	}
}

func TestCloseBuyRequestsMirror(t *testing.T) {
	r, tr := newTestReconciler(t)
	tr.responses["get_trade_requests"] = `{"trs":[[1,"LTC",0.1,"buy"],[2,"LTC",0.3,"buy"],[3,"LTC",500,"sell"]]}`
	tr.responses["update_trade_requests"] = `{"success":true}`

	err := r.CloseBuyRequests(context.Background(), dec("80"), dec("0.0004"), 0, 0, false)
	if err != nil {
		t.Fatalf("CloseBuyRequests() error = %v", err)
	}
	want := `{"update":true,"trs":{` +
		`"1":{"status":6,"quantity":20,"fees":0.0001},` +
		`"2":{"status":6,"quantity":60,"fees":0.0003}}}`
	if got := string(tr.posts[1].body); got != want {
		t.Errorf("posted %s, want %s", got, want)
	}
}

func TestCloseRejectedByServer(t *testing.T) {
	r, tr := newTestReconciler(t)
	tr.responses["update_trade_requests"] = `{"success":false}`

	err := r.CloseRequest(context.Background(), 7, dec("0.5"), dec("0"), false)
	if err == nil {
		t.Fatal("CloseRequest() error = nil, want rejection")
	}
}

func TestAskYN(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"y", true},
		{"n\n", false},
		{"yes\n", false},
		{"Y\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out strings.Builder
		got := askYN(strings.NewReader(tt.input), &out, "proceed")
		if got != tt.want {
			t.Errorf("askYN(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "proceed") {
			t.Errorf("prompt not written for %q", tt.input)
		}
	}
}
