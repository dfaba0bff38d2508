package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KimADR/smt-finalV2-sub001/internal/api"
	"github.com/KimADR/smt-finalV2-sub001/internal/auth"
	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/notify"
	"github.com/KimADR/smt-finalV2-sub001/internal/push"
	"github.com/KimADR/smt-finalV2-sub001/internal/server"
	"github.com/KimADR/smt-finalV2-sub001/internal/store"
	"github.com/KimADR/smt-finalV2-sub001/tests/testutil"
)

var (
	adminPrincipal = model.Principal{UserID: 1, Role: model.RoleAdmin}
	ownerPrincipal = model.Principal{UserID: 7, Role: model.RoleAgent}
)

type testEnv struct {
	srv    *server.Server
	router *gin.Engine
	signer *auth.Signer
	store  *store.SQLiteStore
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	gin.SetMode(gin.TestMode)
	st := testutil.NewTestStore(t)
	signer := auth.NewSigner("test-secret", time.Hour)
	srv := server.New(st, signer, nil, nil)

	return &testEnv{srv: srv, router: srv.Router(), signer: signer, store: st}
}

func (e *testEnv) token(t *testing.T, p model.Principal) string {
	t.Helper()
	tok, _, err := e.signer.Issue(p)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestNotificationsRequireToken(t *testing.T) {
	env := setupTestServer(t)

	if w := env.do(t, http.MethodGet, "/api/notifications", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/notifications", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", w.Code)
	}
}

func TestCreateAlertAndList(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/api/alerts", env.token(t, adminPrincipal), api.CreateAlertRequest{
		UserID:  7,
		Title:   "Seuil de trésorerie dépassé",
		Message: "Solde inférieur à 10 000 €",
		Alert: model.Alert{
			ID:         42,
			Type:       model.AlertThreshold,
			Entreprise: &model.Entreprise{ID: 3},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/notifications", env.token(t, ownerPrincipal), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	var got []model.Notification
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(got) != 1 || got[0].Alert == nil || got[0].Alert.ID != 42 {
		t.Fatalf("list = %+v, want the alert 42 notification", got)
	}

	events, cursor := env.srv.Hub().Since(7, 0)
	if len(events) != 1 || cursor != 1 {
		t.Errorf("hub events = %d, cursor = %d, want 1/1", len(events), cursor)
	}
}

func TestCreateAlertForbiddenForEntreprise(t *testing.T) {
	env := setupTestServer(t)
	tenant := int64(3)
	tok := env.token(t, model.Principal{UserID: 9, Role: model.RoleEntreprise, TenantID: &tenant})

	w := env.do(t, http.MethodPost, "/api/alerts", tok, api.CreateAlertRequest{UserID: 9, Title: "x"})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestMarkReadAndDelete(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	n, err := env.store.CreateNotification(ctx, model.Notification{OwnerUserID: 7, Title: "a"})
	if err != nil {
		t.Fatalf("CreateNotification() error: %v", err)
	}
	tok := env.token(t, ownerPrincipal)
	path := fmt.Sprintf("/api/notifications/%d", n.ID)

	if w := env.do(t, http.MethodPatch, path+"/read", tok, nil); w.Code != http.StatusNoContent {
		t.Fatalf("read: status = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, path, tok, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, path, tok, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}

	got, err := env.store.GetNotification(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetNotification() error: %v", err)
	}
	if !got.Read || !got.Deleted {
		t.Errorf("row = %+v, want read and deleted", got)
	}
}

func TestOtherUsersNotificationIsNotFound(t *testing.T) {
	env := setupTestServer(t)

	n, err := env.store.CreateNotification(context.Background(), model.Notification{OwnerUserID: 8, Title: "a"})
	if err != nil {
		t.Fatalf("CreateNotification() error: %v", err)
	}

	path := fmt.Sprintf("/api/notifications/%d", n.ID)
	if w := env.do(t, http.MethodDelete, path, env.token(t, ownerPrincipal), nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/notifications/abc", env.token(t, ownerPrincipal), nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}

func TestEventsCursor(t *testing.T) {
	env := setupTestServer(t)
	tok := env.token(t, ownerPrincipal)

	w := env.do(t, http.MethodGet, "/api/notifications/events", tok, nil)
	var page api.EventPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding page: %v", err)
	}
	if page.Cursor != 0 || len(page.Events) != 0 {
		t.Fatalf("page = %+v, want empty at cursor 0", page)
	}

	env.srv.Hub().Publish(context.Background(), model.PushEvent{UserID: 7, Alert: &model.Alert{ID: 1}})
	env.srv.Hub().Publish(context.Background(), model.PushEvent{UserID: 8, Alert: &model.Alert{ID: 2}})

	w = env.do(t, http.MethodGet, "/api/notifications/events?after=0", tok, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding page: %v", err)
	}
	if page.Cursor != 2 || len(page.Events) != 1 || page.Events[0].Alert.ID != 1 {
		t.Errorf("page = %+v, want only user 7's event", page)
	}
}

// TestPushReconcileEndToEnd drives the client stack against a live server:
// a websocket push creates a temporary entry which the follow-up fetch swaps
// for the stored notification.
func TestPushReconcileEndToEnd(t *testing.T) {
	env := setupTestServer(t)
	httpSrv := httptest.NewServer(env.router)
	defer httpSrv.Close()

	ownerTok := env.token(t, ownerPrincipal)
	client := api.NewClient(httpSrv.URL, ownerTok, 5*time.Second)
	ws, err := push.NewWebSocketTransport(httpSrv.URL, ownerTok, nil)
	if err != nil {
		t.Fatalf("NewWebSocketTransport() error: %v", err)
	}

	rec := notify.NewReconciler(client, ownerPrincipal, notify.Options{})
	defer rec.Close()
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := push.NewSubscription(ws,
		push.WithFallback(push.NewPollTransport(client, 50*time.Millisecond, nil)),
		push.WithReconnectDelay(50*time.Millisecond),
	)
	go rec.Listen(ctx, sub) //nolint:errcheck

	waitFor(t, "websocket client", func() bool { return env.srv.Hub().Clients(7) == 1 })

	admin := api.NewClient(httpSrv.URL, env.token(t, adminPrincipal), 5*time.Second)
	created, err := admin.CreateAlert(context.Background(), api.CreateAlertRequest{
		UserID: 7,
		Title:  "Échéance TVA",
		Alert:  model.Alert{ID: 55, Type: model.AlertDeadline},
	})
	if err != nil {
		t.Fatalf("CreateAlert() error: %v", err)
	}

	waitFor(t, "reconciled notification", func() bool {
		view := rec.View()
		return len(view) == 1 && view[0].ID == created.ID
	})

	if err := rec.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	got, err := env.store.GetNotification(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetNotification() error: %v", err)
	}
	if !got.Deleted {
		t.Error("store row not deleted")
	}
	if len(rec.View()) != 0 {
		t.Errorf("view = %+v, want empty", rec.View())
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
