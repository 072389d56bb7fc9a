package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/poolhand/payoutd/internal/chain"
	"github.com/poolhand/payoutd/internal/storage"
	"github.com/poolhand/payoutd/internal/wallet"
	"github.com/poolhand/payoutd/pkg/logging"
)

type fakeGateway struct {
	pokeErr      error
	balances     []uint64
	balanceErrOn int // calls at or past this 1-based index fail
	txid         string
	meta         *wallet.TxMeta
	sendErr      error
	txs          map[string]*wallet.TxInfo

	sends        []map[string]uint64
	balanceCalls int
}

func (g *fakeGateway) Poke(ctx context.Context) error {
	return g.pokeErr
}

func (g *fakeGateway) Balance(ctx context.Context, account string) (uint64, error) {
	g.balanceCalls++
	if g.balanceErrOn != 0 && g.balanceCalls >= g.balanceErrOn {
		return 0, wallet.ErrUnreachable
	}
	i := g.balanceCalls - 1
	if i >= len(g.balances) {
		if len(g.balances) == 0 {
			return 0, nil
		}
		return g.balances[len(g.balances)-1], nil
	}
	return g.balances[i], nil
}

func (g *fakeGateway) SendMany(ctx context.Context, account string, recipients map[string]uint64) (string, *wallet.TxMeta, error) {
	sent := make(map[string]uint64, len(recipients))
	for addr, sats := range recipients {
		sent[addr] = sats
	}
	g.sends = append(g.sends, sent)
	if g.sendErr != nil {
		return "", nil, g.sendErr
	}
	return g.txid, g.meta, nil
}

func (g *fakeGateway) GetTransaction(ctx context.Context, txid string) (*wallet.TxInfo, error) {
	info, ok := g.txs[txid]
	if !ok {
		return nil, wallet.ErrTxNotFound
	}
	return info, nil
}

var _ wallet.Gateway = (*fakeGateway)(nil)

type postCall struct {
	path string
	body []byte
}

type fakeTransport struct {
	responses map[string]string
	postErr   map[string]error
	getResp   string
	getErr    error

	posts []postCall
	gets  []string
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
	f.gets = append(f.gets, path)
	if f.getErr != nil {
		return f.getErr
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal([]byte(f.getResp), result)
}

func (f *fakeTransport) postsTo(path string) int {
	n := 0
	for _, p := range f.posts {
		if p.path == path {
			n++
		}
	}
	return n
}

type testEngine struct {
	*Engine
	store     *storage.Store
	gateway   *fakeGateway
	transport *fakeTransport
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "payoutd-engine-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := storage.Open(tmpDir, "LTC")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gw := &fakeGateway{txs: make(map[string]*wallet.TxInfo)}
	tr := &fakeTransport{
		responses: make(map[string]string),
		postErr:   make(map[string]error),
	}
	e := New(&Config{
		Store:       store,
		Gateway:     gw,
		Transport:   tr,
		Validator:   wallet.NewValidator(chain.SchemeVersions, []byte{48}, nil),
		Log:         logging.New(&logging.Config{Level: "fatal", Output: io.Discard}),
		Code:        "LTC",
		Account:     "payouts",
		MinTxOutput: 1000,
		MinConfirms: 12,
	})
	e.now = func() time.Time { return time.Unix(1700000000, 0) }
	return &testEngine{Engine: e, store: store, gateway: gw, transport: tr}
}

// ltcAddress builds a distinct version-48 base58check address per seed.
func ltcAddress(seed byte) string {
	return base58.CheckEncode(bytes.Repeat([]byte{seed}, 20), 48)
}

func addPayout(t *testing.T, store *storage.Store, p *storage.Payout) *storage.Payout {
	t.Helper()
	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback()
	if err := tx.Insert(p); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return p
}

func mustCounts(t *testing.T, store *storage.Store) *storage.Counts {
	t.Helper()
	counts, err := store.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	return counts
}
