package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-loyalty/points-api/internal/config"
	"github.com/campus-loyalty/points-api/internal/db/dbtest"
	"github.com/campus-loyalty/points-api/internal/domain"
)

const testPassword = "Passw0rd!"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	conf := &config.AppConfig{
		API: &config.APIConfig{
			Port:               "0",
			BaseURL:            "localhost",
			Environment:        config.EnvTest,
			JWTSigningKey:      "test-signing-key-0123456789",
			TokenTTL:           time.Hour,
			ResetTokenTTL:      time.Hour,
			ResetRateLimit:     time.Minute,
			AllowedCORSDomains: []string{"http://localhost:5173"},
		},
		Gin:      &config.GinConfig{Mode: gin.TestMode},
		Postgres: &config.PostgresConfig{Driver: "sqlite"},
		Redis:    &config.RedisConfig{Addr: mr.Addr()},
		Log:      &config.LogConfig{Level: "info"},
	}

	return NewServer(conf, dbtest.New(t), rdb)
}

func seedUser(t *testing.T, s *Server, utorid string, role domain.Role, points int) domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user, err := s.users.Create(context.Background(), domain.User{
		UTORid:   utorid,
		Name:     utorid,
		Email:    utorid + "@mail.utoronto.ca",
		Password: string(hash),
		Role:     role,
		Points:   points,
		Verified: true,
	})
	require.NoError(t, err)

	return user
}

func call(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())

	return out
}

func errMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	return decode[map[string]string](t, w)["error"]
}

func login(t *testing.T, s *Server, utorid string) string {
	t.Helper()

	w := call(t, s, http.MethodPost, "/auth/tokens", "", map[string]string{"utorid": utorid, "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	return decode[map[string]any](t, w)["token"].(string)
}

func TestServer_Healthcheck(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestServer_LoginAndLogout(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "student01", domain.RoleRegular, 0)

	w := call(t, s, http.MethodPost, "/auth/tokens", "", map[string]string{"utorid": "student01", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = call(t, s, http.MethodPost, "/auth/tokens", "", map[string]string{"utorid": "nobody0001", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = call(t, s, http.MethodPost, "/auth/tokens", "", map[string]string{"utorid": "student01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token := login(t, s, "student01")

	w = call(t, s, http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[domain.User](t, w)
	assert.Equal(t, "student01", me.UTORid)
	assert.True(t, me.Activated)
	assert.NotNil(t, me.LastLogin)

	w = call(t, s, http.MethodDelete, "/auth/tokens", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = call(t, s, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_RoleGuards(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "student01", domain.RoleRegular, 0)
	seedUser(t, s, "cashier01", domain.RoleCashier, 0)
	student := login(t, s, "student01")
	cashier := login(t, s, "cashier01")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "no token", method: http.MethodGet, path: "/users/me", want: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/users/me", token: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "regular lists users", method: http.MethodGet, path: "/users", token: student, want: http.StatusForbidden},
		{name: "cashier lists users", method: http.MethodGet, path: "/users", token: cashier, want: http.StatusForbidden},
		{name: "regular creates purchase", method: http.MethodPost, path: "/transactions", token: student, want: http.StatusForbidden},
		{name: "cashier exports", method: http.MethodGet, path: "/transactions/export", token: cashier, want: http.StatusForbidden},
		{name: "regular draws raffle", method: http.MethodPost, path: "/raffles/1/draw", token: student, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(t, s, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestServer_CreateUserAndReset(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "cashier01", domain.RoleCashier, 0)
	cashier := login(t, s, "cashier01")

	body := map[string]string{"utorid": "newuser01", "name": "New User", "email": "new.user@mail.utoronto.ca"}
	w := call(t, s, http.MethodPost, "/users", cashier, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, "newuser01", created["utorid"])
	assert.Equal(t, false, created["verified"])
	assert.NotEmpty(t, created["resetToken"])

	w = call(t, s, http.MethodPost, "/users", cashier, body)
	assert.Equal(t, http.StatusConflict, w.Code)

	body["utorid"], body["email"] = "newuser02", "someone@gmail.com"
	w = call(t, s, http.MethodPost, "/users", cashier, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, s, http.MethodPost, "/auth/resets", "", map[string]string{"utorid": "newuser01"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resetToken := decode[map[string]any](t, w)["resetToken"].(string)

	w = call(t, s, http.MethodPost, "/auth/resets", "", map[string]string{"utorid": "newuser01"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = call(t, s, http.MethodPost, "/auth/resets/"+resetToken, "", map[string]string{"utorid": "newuser01", "password": "weak"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = call(t, s, http.MethodPost, "/auth/resets/"+resetToken, "", map[string]string{"utorid": "cashier01", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = call(t, s, http.MethodPost, "/auth/resets/"+resetToken, "", map[string]string{"utorid": "newuser01", "password": testPassword})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	login(t, s, "newuser01")

	w = call(t, s, http.MethodPost, "/auth/resets/"+resetToken, "", map[string]string{"utorid": "newuser01", "password": testPassword})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_PurchaseRedeemAndProcess(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "student01", domain.RoleRegular, 0)
	seedUser(t, s, "cashier01", domain.RoleCashier, 0)
	student := login(t, s, "student01")
	cashier := login(t, s, "cashier01")

	w := call(t, s, http.MethodPost, "/transactions", cashier, map[string]any{
		"utorid": "student01", "type": "purchase", "spent": 19.99, "promotionIds": []uint{}, "remark": "coffee",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	purchase := decode[domain.Transaction](t, w)
	require.NotNil(t, purchase.Earned)
	assert.Equal(t, 80, *purchase.Earned)
	assert.Equal(t, "cashier01", purchase.CreatedBy)

	w = call(t, s, http.MethodPost, "/users/me/transactions", student, map[string]any{"type": "redemption", "amount": 81})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "You do not have enough points", errMessage(t, w))

	w = call(t, s, http.MethodPost, "/users/me/transactions", student, map[string]any{"type": "redemption", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, s, http.MethodPost, "/users/me/transactions", student, map[string]any{"type": "redemption", "amount": 50, "remark": "snack bar"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	redemption := decode[domain.Transaction](t, w)
	assert.False(t, redemption.Processed)

	// Points only leave once the redemption is processed.
	w = call(t, s, http.MethodGet, "/users/me", student, nil)
	assert.Equal(t, 80, decode[domain.User](t, w).Points)

	w = call(t, s, http.MethodGet, "/transactions?type=purchase", cashier, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(t, s, http.MethodGet, "/transactions?type=redemption&processed=false&name=student01", cashier, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[struct {
		Count   int64                `json:"count"`
		Results []domain.Transaction `json:"results"`
	}](t, w)
	require.Len(t, list.Results, 1)
	assert.Equal(t, redemption.ID, list.Results[0].ID)

	path := fmt.Sprintf("/transactions/%d/processed", redemption.ID)
	w = call(t, s, http.MethodPatch, path, cashier, map[string]bool{"processed": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	processed := decode[domain.Transaction](t, w)
	assert.True(t, processed.Processed)
	assert.Equal(t, "cashier01", processed.ProcessedBy)

	w = call(t, s, http.MethodPatch, path, cashier, map[string]bool{"processed": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, s, http.MethodGet, "/users/me", student, nil)
	assert.Equal(t, 30, decode[domain.User](t, w).Points)

	w = call(t, s, http.MethodGet, "/transactions?type=redemption&processed=false", cashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestServer_LedgerAmountBounds(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "student01", domain.RoleRegular, 0)
	seedUser(t, s, "manager01", domain.RoleManager, 0)
	manager := login(t, s, "manager01")

	w := call(t, s, http.MethodPost, "/transactions", manager, map[string]any{
		"utorid": "student01", "type": "purchase", "spent": 1e300,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrSpentTooLarge.Error(), errMessage(t, w))

	w = call(t, s, http.MethodPost, "/transactions", manager, map[string]any{
		"utorid": "student01", "type": "purchase", "spent": 10,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	purchase := decode[domain.Transaction](t, w)

	w = call(t, s, http.MethodPost, "/transactions", manager, map[string]any{
		"utorid": "student01", "type": "adjustment", "amount": int64(1) << 62, "relatedId": purchase.ID,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrPointsOutOfRange.Error(), errMessage(t, w))

	w = call(t, s, http.MethodGet, "/users/me", login(t, s, "student01"), nil)
	assert.Equal(t, 40, decode[domain.User](t, w).Points)
}

func TestServer_Transfer(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "student01", domain.RoleRegular, 100)
	friend := seedUser(t, s, "student02", domain.RoleRegular, 0)
	student := login(t, s, "student01")

	w := call(t, s, http.MethodGet, "/users/resolve/doesnotexist1", student, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Receiver not found", errMessage(t, w))

	w = call(t, s, http.MethodPost, "/users/9999/transactions", student, map[string]any{"type": "transfer", "amount": 5})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Receiver not found", errMessage(t, w))

	w = call(t, s, http.MethodGet, "/users/resolve/student02", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, friend.ID, decode[domain.UserSummary](t, w).ID)

	path := fmt.Sprintf("/users/%d/transactions", friend.ID)
	w = call(t, s, http.MethodPost, path, student, map[string]any{"type": "transfer", "amount": 101})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "You do not have enough points", errMessage(t, w))

	w = call(t, s, http.MethodPost, path, student, map[string]any{"type": "transfer", "amount": 40, "remark": "lunch"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	transfer := decode[map[string]any](t, w)
	assert.Equal(t, "student02", transfer["recipient"])
	assert.EqualValues(t, 40, transfer["sent"])

	w = call(t, s, http.MethodGet, "/users/me", student, nil)
	assert.Equal(t, 60, decode[domain.User](t, w).Points)

	friendToken := login(t, s, "student02")
	w = call(t, s, http.MethodGet, "/users/me", friendToken, nil)
	assert.Equal(t, 40, decode[domain.User](t, w).Points)
}

func TestServer_EventRSVP(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "manager01", domain.RoleManager, 0)
	seedUser(t, s, "student01", domain.RoleRegular, 0)
	seedUser(t, s, "student02", domain.RoleRegular, 0)
	manager := login(t, s, "manager01")
	student := login(t, s, "student01")
	other := login(t, s, "student02")

	start := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	w := call(t, s, http.MethodPost, "/events", manager, map[string]any{
		"name":        "Games night",
		"description": "Board games",
		"location":    "BA 3200",
		"startTime":   start,
		"endTime":     start.Add(2 * time.Hour),
		"capacity":    1,
		"points":      100,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	event := decode[domain.Event](t, w)
	eventPath := fmt.Sprintf("/events/%d", event.ID)

	// Unpublished events are invisible to regular users.
	w = call(t, s, http.MethodPost, eventPath+"/guests/me", student, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(t, s, http.MethodPatch, eventPath, manager, map[string]any{"published": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, s, http.MethodPost, eventPath+"/guests/me", student, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["numGuests"])

	w = call(t, s, http.MethodPost, eventPath+"/guests/me", student, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "You have already RSVPed", errMessage(t, w))

	w = call(t, s, http.MethodPost, eventPath+"/guests/me", other, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "Event is full or has ended", errMessage(t, w))

	w = call(t, s, http.MethodDelete, eventPath+"/guests/me", student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, decode[map[string]any](t, w)["numGuests"])

	w = call(t, s, http.MethodPost, eventPath+"/guests/me", other, nil)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(t, s, http.MethodDelete, eventPath, manager, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/tokens", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_WebSocketNotifications(t *testing.T) {
	s := newTestServer(t)
	seedUser(t, s, "cashier01", domain.RoleCashier, 0)
	student := seedUser(t, s, "student01", domain.RoleRegular, 0)
	cashier := login(t, s, "cashier01")
	studentToken := login(t, s, "student01")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub.Run(ctx)

	srv := httptest.NewServer(s.Router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?token=" + studentToken
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	messages := make(chan domain.Notification, 16)
	go func() {
		defer close(messages)
		for {
			var n domain.Notification
			if err := conn.ReadJSON(&n); err != nil {
				return
			}
			messages <- n
		}
	}()

	// Registration completes after the upgrade, so probe until the hub
	// knows about the connection.
	probe := domain.Notification{Type: domain.NotifyRaffleDrawn, UserID: student.ID}
	registered := false
	for deadline := time.Now().Add(5 * time.Second); !registered && time.Now().Before(deadline); {
		s.Hub.Notify(probe)
		select {
		case n := <-messages:
			assert.Equal(t, probe.Type, n.Type)
			registered = true
		case <-time.After(50 * time.Millisecond):
		}
	}
	require.True(t, registered, "websocket never registered")

	w := call(t, s, http.MethodPost, "/transactions", cashier, map[string]any{
		"utorid": "student01", "type": "purchase", "spent": 10, "promotionIds": []uint{},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	timeout := time.After(5 * time.Second)
	for {
		select {
		case n, ok := <-messages:
			require.True(t, ok, "connection closed early")
			if n.Type != domain.NotifyPointsChanged {
				continue
			}
			assert.Equal(t, student.ID, n.UserID)
			return
		case <-timeout:
			t.Fatal("no points_changed notification")
		}
	}
}

func TestServer_WebSocketRequiresToken(t *testing.T) {
	s := newTestServer(t)

	srv := httptest.NewServer(s.Router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
