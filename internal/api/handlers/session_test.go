package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/walink/walink/internal/api/middleware"
	"github.com/walink/walink/internal/credentials"
	"github.com/walink/walink/internal/crypto"
	"github.com/walink/walink/internal/database"
	"github.com/walink/walink/internal/protocol"
	"github.com/walink/walink/internal/session"
)

const (
	testAccessKey    = "test-access-key"
	testMasterSecret = "test-master-secret"
)

// blockedDialer never produces a handle; handler tests only exercise the
// synchronous control surface.
func blockedDialer(ctx context.Context, _ []byte) (protocol.Client, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	jwtManager, err := crypto.NewJWTManager(testMasterSecret)
	if err != nil {
		t.Fatalf("failed to create JWT manager: %v", err)
	}

	controller := session.New(session.Config{
		RetryBaseDelay:    time.Hour,
		WipeRestartDelay:  time.Hour,
		ExhaustedCooldown: time.Hour,
		ConnectTimeout:    time.Hour,
	}, credentials.NewStore(db.DB, testMasterSecret), blockedDialer)
	t.Cleanup(controller.Shutdown)

	authHandler := NewAuthHandler(testAccessKey, jwtManager)
	sessionHandler := NewSessionHandler(controller, db.DB)

	router := gin.New()
	v1 := router.Group("/v1")
	v1.POST("/auth", authHandler.PostAuth)
	v1.GET("/status", sessionHandler.GetStatus)

	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(jwtManager))
	protected.POST("/init", sessionHandler.PostInit)
	protected.GET("/pairing", sessionHandler.GetPairing)
	protected.POST("/send", sessionHandler.PostSend)
	protected.POST("/reconnect", sessionHandler.PostReconnect)
	protected.POST("/disconnect", sessionHandler.PostDisconnect)
	protected.POST("/auto-reconnect", sessionHandler.PostAutoReconnect)
	protected.GET("/messages", sessionHandler.ListDeliveries)

	token, err := jwtManager.CreateToken("operator")
	if err != nil {
		t.Fatalf("failed to create token: %v", err)
	}
	return router, token
}

func doRequest(router *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestGetStatus_PublicAndUninitialized(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/v1/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "uninitialized" {
		t.Fatalf("expected uninitialized, got %v", body["status"])
	}
	if body["autoReconnectEnabled"] != true {
		t.Fatal("auto-reconnect should start enabled")
	}
}

func TestPostAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/v1/auth", "", `{"accessKey":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", w.Code)
	}

	w = doRequest(router, http.MethodPost, "/v1/auth", "", `{"accessKey":"`+testAccessKey+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decodeBody(t, w)["token"] == "" {
		t.Fatal("expected a token")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, token := newTestRouter(t)

	if w := doRequest(router, http.MethodPost, "/v1/init", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := doRequest(router, http.MethodPost, "/v1/init", "garbage", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}
	if w := doRequest(router, http.MethodPost, "/v1/init", token, ""); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with token, got %d", w.Code)
	}
}

func TestPairingLifecycleCodes(t *testing.T) {
	router, token := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/v1/pairing", token, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before init, got %d", w.Code)
	}

	if w := doRequest(router, http.MethodPost, "/v1/init", token, ""); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 from init, got %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/v1/pairing", token, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 while connecting, got %d", w.Code)
	}
}

func TestSendWhileNotConnected(t *testing.T) {
	router, token := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/v1/send", token, `{"recipient":"+1555","text":"hi"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	w = doRequest(router, http.MethodPost, "/v1/send", token, `{"recipient":"+1555"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty payload, got %d", w.Code)
	}
}

func TestDisconnectTwice(t *testing.T) {
	router, token := newTestRouter(t)

	if w := doRequest(router, http.MethodPost, "/v1/disconnect", token, ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on first disconnect, got %d", w.Code)
	}
	if w := doRequest(router, http.MethodPost, "/v1/disconnect", token, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on second disconnect, got %d", w.Code)
	}
}

func TestAutoReconnectValidation(t *testing.T) {
	router, token := newTestRouter(t)

	if w := doRequest(router, http.MethodPost, "/v1/auto-reconnect", token, `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing field, got %d", w.Code)
	}

	w := doRequest(router, http.MethodPost, "/v1/auto-reconnect", token, `{"enabled":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decodeBody(t, w)["autoReconnectEnabled"] != false {
		t.Fatal("expected auto-reconnect disabled")
	}
}

func TestListDeliveriesEmpty(t *testing.T) {
	router, token := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/v1/messages", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	deliveries, ok := body["deliveries"].([]any)
	if !ok {
		t.Fatalf("expected deliveries array, got %v", body)
	}
	if len(deliveries) != 0 {
		t.Fatalf("expected empty delivery log, got %d entries", len(deliveries))
	}
}
