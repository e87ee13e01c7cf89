package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"scalping-core/internal/events"
	"scalping-core/internal/order"
	"scalping-core/internal/risk"
	"scalping-core/internal/signal"
	"scalping-core/pkg/db"
)

type noopVenue struct{}

func (noopVenue) PlaceContract(context.Context, signal.Direction, string, float64, int) (order.Placement, error) {
	return order.Placement{ContractID: "1"}, nil
}

const testPassword = "correct horse battery staple"

func newTestAPIServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	bus := events.NewBus()
	gate := risk.NewInMemory(risk.DefaultLimits())
	orders := order.NewManager(order.Config{
		Venue:  noopVenue{},
		Gate:   gate,
		Symbol: "R_100",
	})

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	server := NewServer(
		bus,
		database,
		gate,
		orders,
		nil,
		SystemMeta{Symbol: "R_100", Venue: "deriv", Version: "test"},
		"test-secret",
		string(hash),
	)

	httpServer := httptest.NewServer(server.Router)
	cleanup := func() {
		httpServer.Close()
		_ = database.Close()
	}
	return httpServer, cleanup
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func login(t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	status := doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/login", "", map[string]string{
		"password": testPassword,
	}, &resp)
	if status != http.StatusOK || resp.Token == "" {
		t.Fatalf("login failed status=%d resp=%+v", status, resp)
	}
	return resp.Token
}

func TestStatusEndpoint(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	var resp struct {
		Symbol string         `json:"symbol"`
		Risk   map[string]any `json:"risk"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/status", "", nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.Symbol != "R_100" {
		t.Fatalf("symbol = %q, want R_100", resp.Symbol)
	}
	if resp.Risk["status"] != "ACTIVE" {
		t.Fatalf("risk status = %v, want ACTIVE", resp.Risk["status"])
	}
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/api/risk/resume", "", nil, &resp)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if resp.Code != "MISSING_TOKEN" {
		t.Fatalf("code = %q, want MISSING_TOKEN", resp.Code)
	}

	status = doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/api/risk/resume", "not-a-jwt", nil, &resp)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", status)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"password": "wrong",
	}, &resp)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if resp.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("code = %q, want INVALID_CREDENTIALS", resp.Code)
	}
}

func TestResumeClearsPause(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	token := login(t, client, ts.URL)

	var resp struct {
		Status string `json:"status"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/risk/resume", token, nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.Status != "ACTIVE" {
		t.Fatalf("status = %q, want ACTIVE", resp.Status)
	}
}

func TestRecentOrdersFromDatabase(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	// One limit validation failure, then a real listing.
	var errResp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/orders/recent?limit=0", "", nil, &errResp)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", status)
	}

	var resp struct {
		Orders []db.Order `json:"orders"`
	}
	status = doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/orders/recent?limit=5", "", nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(resp.Orders) != 0 {
		t.Fatalf("orders = %d on a fresh database, want 0", len(resp.Orders))
	}
}
