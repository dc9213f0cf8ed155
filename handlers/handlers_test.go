package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"workhard-dashboard/bus"
	"workhard-dashboard/chaintest"
	"workhard-dashboard/dashboard"
	"workhard-dashboard/fork"
	"workhard-dashboard/metrics"
	"workhard-dashboard/middleware"
	"workhard-dashboard/models"
	"workhard-dashboard/services"
	"workhard-dashboard/storage/activity"
	"workhard-dashboard/storage/auth"
	"workhard-dashboard/tick"
	"workhard-dashboard/wallet"
)

type memStore struct{ n int }

func (m *memStore) AddBytes(context.Context, string, []byte) (string, error) {
	m.n++
	return fmt.Sprintf("cid%d", m.n), nil
}

type server struct {
	chain   *chaintest.Chain
	account common.Address
	http    *httptest.Server
}

func newServer(t *testing.T, keys *auth.APIKeyStore) *server {
	t.Helper()
	c := chaintest.New(1_700_000_000)
	b := bus.New()
	src := tick.New(c, b, time.Second, zap.NewNop(), nil)
	_, err := src.Poll(context.Background())
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w := wallet.New(key, 31337)
	account, _ := w.Account()

	m := metrics.New()
	svc := dashboard.New(c.Contracts(), b, src, w, c,
		dashboard.WithJournal(activity.NewMemoryStore(0)),
		dashboard.WithMetrics(m),
		dashboard.WithPublisher(fork.NewPublisher(&memStore{}, zap.NewNop())))
	t.Cleanup(svc.Close)

	set := Set{
		Health:    NewHealthHandler(services.NewHealthService(svc.Network), nil),
		QRCode:    NewQRCodeHandler(services.NewQRCodeService(), nil),
		Dashboard: NewDashboardHandler(svc, nil),
		Commands:  NewCommandHandler(svc, nil),
		Metrics:   m.Handler(),
	}
	if keys != nil {
		set.Guard = middleware.APIAuth(keys)
	}
	srv := httptest.NewServer(middleware.Chain(set.Routes(), middleware.Recovery(zap.NewNop()), middleware.ContentType))
	t.Cleanup(srv.Close)
	return &server{chain: c, account: account, http: srv}
}

func (s *server) do(t *testing.T, method, path string, body any) (*http.Response, models.APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.http.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out models.APIResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func data[T any](t *testing.T, resp models.APIResponse) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestHealthAndNetwork(t *testing.T) {
	s := newServer(t, nil)

	resp, body := s.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := data[models.HealthResponse](t, body)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "localhost", health.Network)
	assert.True(t, health.CanSign)

	_, body = s.do(t, http.MethodGet, "/api/network", nil)
	network := data[dashboard.Network](t, body)
	assert.Equal(t, int64(31337), network.ChainID)
	assert.Equal(t, s.account.Hex(), network.Account)
}

func TestBalanceView(t *testing.T) {
	s := newServer(t, nil)
	s.chain.Mint(s.account, ether(3))

	resp, body := s.do(t, http.MethodGet, "/api/accounts/"+s.account.Hex()+"/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	card := data[map[string]any](t, body)
	assert.Equal(t, "3.00", card["balance"])

	resp, body = s.do(t, http.MethodGet, "/api/accounts/0xnothex/balance", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", body.Error.Error)

	resp, _ = s.do(t, http.MethodGet, "/api/accounts/"+s.account.Hex()+"/balance?token=zz", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommandNoticeEnvelope(t *testing.T) {
	s := newServer(t, nil)
	s.chain.Mint(s.account, ether(1))

	resp, body := s.do(t, http.MethodPost, "/api/commands/create-lock", map[string]any{"amount": "5", "epochs": 4})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "precondition", body.Error.Error)
	assert.Equal(t, "Not enough balance", body.Error.Message)
	assert.Equal(t, "createLock", body.Error.Hint)
	assert.Empty(t, s.chain.Sent())

	s.chain.RevertNext = true
	resp, body = s.do(t, http.MethodPost, "/api/commands/approve", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "rejected", body.Error.Error)
	assert.Contains(t, body.Error.Message, "Rejected with")
}

func TestLockLifecycleOverHTTP(t *testing.T) {
	s := newServer(t, nil)
	s.chain.Mint(s.account, ether(10))
	base := "/api/accounts/" + s.account.Hex()

	resp, body := s.do(t, http.MethodGet, base+"/create-lock?amount=4&epochs=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	form := data[map[string]any](t, body)
	assert.Equal(t, false, form["approved"])

	resp, body = s.do(t, http.MethodPost, "/api/commands/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, data[map[string]any](t, body)["hash"])

	resp, _ = s.do(t, http.MethodPost, "/api/commands/create-lock", map[string]any{"amount": "4", "epochs": 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, base+"/locks?epochs=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cards := data[[]map[string]any](t, body)
	require.Len(t, cards, 1)
	assert.Equal(t, "4.00", cards[0]["locked"])

	resp, _ = s.do(t, http.MethodPost, "/api/commands/extend-lock", map[string]any{"lock_id": "1", "epochs": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/api/commands/withdraw", map[string]any{"lock_id": "0x1"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Still locked", body.Error.Message)

	resp, body = s.do(t, http.MethodPost, "/api/commands/delegate", map[string]any{"lock_id": "42", "to": s.account.Hex()})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "lock_not_found", body.Error.Error)

	resp, _ = s.do(t, http.MethodPost, "/api/commands/withdraw", map[string]any{"lock_id": "one"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = s.do(t, http.MethodGet, "/api/activity?account="+s.account.Hex()+"&outcome=confirmed", nil)
	entries := data[[]activity.Entry](t, body)
	assert.Len(t, entries, 3)
}

func TestProposalShapeMismatchIsBadRequest(t *testing.T) {
	s := newServer(t, nil)
	body := `{"target": ["0x00000000000000000000000000000000000000aa"], "value": "0", "data": ["0x"]}`

	resp, out := s.do(t, http.MethodPost, "/api/accounts/"+s.account.Hex()+"/proposal", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_call", out.Error.Error)

	resp, _ = s.do(t, http.MethodPost, "/api/commands/schedule", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, s.chain.Sent())
}

func TestProposalCard(t *testing.T) {
	s := newServer(t, nil)
	body := `{"target": "0x00000000000000000000000000000000000000aa", "value": "0", "data": "0x"}`

	resp, out := s.do(t, http.MethodPost, "/api/accounts/"+s.account.Hex()+"/proposal", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	card := data[map[string]any](t, out)
	assert.Equal(t, "Not scheduled", card["state"])
	assert.Equal(t, false, card["batch"])
}

func TestCommandsRequireAPIKeyWhenGuarded(t *testing.T) {
	keys := auth.NewAPIKeyStore()
	keys.Seed("ops-key", "ops")
	s := newServer(t, keys)

	resp, body := s.do(t, http.MethodPost, "/api/commands/approve", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "api_key_required", body.Error.Error)

	req, err := http.NewRequest(http.MethodPost, s.http.URL+"/api/commands/approve", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "ops-key")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// views stay open
	resp, _ = s.do(t, http.MethodGet, "/api/network", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForkOverHTTP(t *testing.T) {
	s := newServer(t, nil)

	resp, body := s.do(t, http.MethodGet, "/api/fork/upgrade/3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	route := data[map[string]any](t, body)
	assert.Equal(t, "upgrade", route["step"])

	resp, body = s.do(t, http.MethodGet, "/api/fork/deploy", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_fork_input", body.Error.Error)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	require.NoError(t, mw.WriteField("name", "Fork"))
	fw, err := mw.CreateFormFile("image", "logo.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.http.URL+"/api/commands/fork/new", &form)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var created models.APIResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	result := data[map[string]any](t, created)
	assert.Equal(t, "ipfs://cid2", result["metadata_uri"])

	resp, _ = s.do(t, http.MethodPost, "/api/commands/fork/upgrade/0", map[string]string{"name": "Fork DAO", "symbol": "FORK"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/api/commands/fork/launch/0", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = s.do(t, http.MethodGet, "/api/accounts/"+s.account.Hex()+"/jobs", nil)
	board := data[map[string]any](t, body)
	assert.Equal(t, []any{"0"}, board["active"])

	resp, body = s.do(t, http.MethodPost, "/api/commands/fork/new", map[string]any{"name": "x", "image_name": "x.exe", "image": []byte{1}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_fork_input", body.Error.Error)
}

func TestQRCodeAndMetrics(t *testing.T) {
	s := newServer(t, nil)

	res, err := http.Get(s.http.URL + "/api/qrcode?address=" + s.account.Hex() + "&amount=1")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/png", res.Header.Get("Content-Type"))

	resp, _ := s.do(t, http.MethodGet, "/api/qrcode", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	res, err = http.Get(s.http.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestUnknownContentTypeRejected(t *testing.T) {
	s := newServer(t, nil)
	res, err := http.Post(s.http.URL+"/api/commands/approve", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, res.StatusCode)
}
