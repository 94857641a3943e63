package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Kellyjunior6387/flixshare/client"
	"github.com/Kellyjunior6387/flixshare/controller"
	"github.com/Kellyjunior6387/flixshare/intent"
	"github.com/Kellyjunior6387/flixshare/model"
	"github.com/Kellyjunior6387/flixshare/mpesa"
	"github.com/Kellyjunior6387/flixshare/reconciler"
	"github.com/Kellyjunior6387/flixshare/routes"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (m *mapCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	return nil
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

// stubAuth replaces the identity-provider middleware in tests.
func stubAuth(c *fiber.Ctx) error {
	c.Locals("user_id", "u1")
	c.Locals("token", "test-token")
	return c.Next()
}

func newTestApp(t *testing.T, gatewayURL string) (*fiber.App, *gorm.DB) {
	t.Helper()
	// Unreachable collaborator: tests that exercise the username lookup
	// pass a real httptest URL via newTestAppWithAuth.
	return newTestAppWithAuth(t, gatewayURL, "http://127.0.0.1:1")
}

func newTestAppWithAuth(t *testing.T, gatewayURL, authURL string) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&model.Room{}, &model.RoomMember{},
		&model.PaymentIntent{}, &model.Transaction{},
	); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	intents := intent.NewStore(newMapCache(), db)
	gateway := mpesa.NewClient("key", "secret", "174379", "passkey", gatewayURL, "https://example.com/payment/callback")

	pc := &controller.PaymentController{
		DB:         db,
		Gateway:    gateway,
		Intents:    intents,
		Reconciler: reconciler.New(db, intents, nil),
	}
	rc := &controller.RoomController{DB: db, Auth: client.NewAuthClient(authURL)}

	app := fiber.New()
	routes.Register(app, stubAuth, pc, rc)
	return app, db
}

func seedRoomAndIntent(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Create(&model.Room{
		RoomID: "r1", OwnerID: "owner-1", Name: "Spotify Family", ServiceType: "spotify", Cost: 500,
	}).Error; err != nil {
		t.Fatalf("seed room: %v", err)
	}
	if err := db.Create(&model.RoomMember{
		RoomID: "r1", UserID: "u1", Role: model.RoleMember,
		PaymentStatus: model.PaymentPending, IsActive: true,
	}).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	if err := db.Create(&model.PaymentIntent{
		MerchantRequestID: "mr-1", UserID: "u1", RoomID: "r1",
		RoomName: "Spotify Family", PhoneNumber: "254712345678",
	}).Error; err != nil {
		t.Fatalf("seed intent: %v", err)
	}
}

const callbackBody = `{"Body":{"stkCallback":{"MerchantRequestID":"mr-1","CheckoutRequestID":"ws_CO_1",
  "ResultCode":0,"ResultDesc":"The service request is processed successfully.",
  "CallbackMetadata":{"Item":[
    {"Name":"Amount","Value":500},
    {"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
    {"Name":"TransactionDate","Value":20250731125424},
    {"Name":"PhoneNumber","Value":254712345678}
  ]}}}}`

func postCallback(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payment/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func TestCallbackSuccess(t *testing.T) {
	app, db := newTestApp(t, "http://unused")
	seedRoomAndIntent(t, db)

	resp := postCallback(t, app, callbackBody)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if out["message"] != "Callback processed" {
		t.Errorf("message = %q", out["message"])
	}

	var m model.RoomMember
	if err := db.Where("room_id = ? AND user_id = ?", "r1", "u1").First(&m).Error; err != nil {
		t.Fatalf("load member: %v", err)
	}
	if m.PaymentStatus != model.PaymentPaid {
		t.Errorf("payment_status = %q, want paid", m.PaymentStatus)
	}
}

func TestCallbackDuplicateStillAcked(t *testing.T) {
	app, db := newTestApp(t, "http://unused")
	seedRoomAndIntent(t, db)

	if resp := postCallback(t, app, callbackBody); resp.StatusCode != 200 {
		t.Fatalf("first delivery status = %d", resp.StatusCode)
	}
	if resp := postCallback(t, app, callbackBody); resp.StatusCode != 200 {
		t.Fatalf("duplicate delivery status = %d, want 200", resp.StatusCode)
	}

	var n int64
	db.Model(&model.Transaction{}).Count(&n)
	if n != 1 {
		t.Errorf("transaction count = %d, want 1", n)
	}
}

func TestCallbackUnknownIntent(t *testing.T) {
	app, _ := newTestApp(t, "http://unused")

	resp := postCallback(t, app, callbackBody)
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCallbackCancelled(t *testing.T) {
	app, db := newTestApp(t, "http://unused")
	seedRoomAndIntent(t, db)

	body := `{"Body":{"stkCallback":{"MerchantRequestID":"mr-1","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`
	resp := postCallback(t, app, body)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200 (gateway must not retry)", resp.StatusCode)
	}

	var n int64
	db.Model(&model.Transaction{}).Count(&n)
	if n != 0 {
		t.Errorf("transaction count = %d, want 0", n)
	}
}

func TestCallbackMalformed(t *testing.T) {
	app, _ := newTestApp(t, "http://unused")

	resp := postCallback(t, app, `{"not":"a callback"}`)
	if resp.StatusCode != 500 {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCallbackRejectsGet(t *testing.T) {
	app, _ := newTestApp(t, "http://unused")

	req := httptest.NewRequest(http.MethodGet, "/payment/callback", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode == 200 {
		t.Error("GET on the callback route must not be accepted")
	}
}

func TestInitiateValidation(t *testing.T) {
	app, db := newTestApp(t, "http://unused")
	seedRoomAndIntent(t, db)

	cases := []string{
		`{"amount":500,"room_id":"r1"}`,
		`{"phone_number":"254712345678","room_id":"r1"}`,
		`{"phone_number":"254712345678","amount":500}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/payment/stk-push", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, 5000)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != 400 {
			t.Errorf("body %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestInitiatePersistsIntentAndPassesThrough(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"MerchantRequestID": "mr-9",
			"CheckoutRequestID": "ws_CO_9",
			"ResponseCode":      "0",
			"CustomerMessage":   "Success. Request accepted for processing",
		})
	}))
	defer gateway.Close()

	app, db := newTestApp(t, gateway.URL)
	seedRoomAndIntent(t, db)

	body := `{"phone_number":"254712345678","amount":500,"room_id":"r1"}`
	req := httptest.NewRequest(http.MethodPost, "/payment/stk-push", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	raw, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(raw, []byte("mr-9")) {
		t.Errorf("gateway acknowledgment not passed through: %s", raw)
	}

	var in model.PaymentIntent
	if err := db.Where("merchant_request_id = ?", "mr-9").First(&in).Error; err != nil {
		t.Fatalf("intent not persisted: %v", err)
	}
	if in.UserID != "u1" || in.RoomID != "r1" || in.PhoneNumber != "254712345678" {
		t.Errorf("unexpected intent: %+v", in)
	}
}

func TestInitiateGatewayRejectionWritesNothing(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorMessage":"Invalid PhoneNumber"}`))
	}))
	defer gateway.Close()

	app, db := newTestApp(t, gateway.URL)
	seedRoomAndIntent(t, db)

	body := `{"phone_number":"bad","amount":500,"room_id":"r1"}`
	req := httptest.NewRequest(http.MethodPost, "/payment/stk-push", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400 passthrough", resp.StatusCode)
	}

	var n int64
	db.Model(&model.PaymentIntent{}).Where("merchant_request_id != ?", "mr-1").Count(&n)
	if n != 0 {
		t.Errorf("no intent may be written on gateway rejection, found %d", n)
	}
}

func TestInitiateUnknownRoom(t *testing.T) {
	app, _ := newTestApp(t, "http://unused")

	body := `{"phone_number":"254712345678","amount":500,"room_id":"nope"}`
	req := httptest.NewRequest(http.MethodPost, "/payment/stk-push", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
