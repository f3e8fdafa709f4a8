package ginserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carchat/internal/app/commands"
	"carchat/internal/app/dto"
	chatapp "carchat/internal/app/handlers/chat"
	"carchat/internal/app/middleware"
	appoutbox "carchat/internal/app/outbox"
	"carchat/internal/app/queries"
	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
	"carchat/internal/infra/config"
	ginserver "carchat/internal/infra/http/gin"
	"carchat/internal/infra/obs"
	"carchat/internal/infra/storage/memory"
)

func newRouter(t *testing.T, limiter gin.HandlerFunc) *gin.Engine {
	t.Helper()
	store := memory.NewChatStore()
	catalog := memory.NewCatalog()
	catalog.PutCar(listings.Car{ID: "7", Make: "Toyota", Model: "Camry", Year: 2019, Price: 18500, Status: listings.SaleAvailable, DealershipID: "42"})
	factory := memory.Factory{Store: store}
	box := memory.NewOutbox(appoutbox.MultiPublisher{}, nil)

	cmdBus := commands.NewInMemoryBus()
	qBus := queries.NewInMemoryBus()
	chatapp.Register(cmdBus, qBus, chatapp.Dependencies{
		UoWFactory:      factory,
		Outbox:          box,
		Resolver:        &chatapp.ContextResolver{Catalog: catalog},
		ConflictBackoff: []time.Duration{time.Millisecond},
	})
	handler := ginserver.ChatHandler{
		Commands: middleware.ChainCommands(cmdBus,
			middleware.Retry(middleware.RetryPolicy{Retryable: domainchat.IsRetryable, Backoff: []time.Duration{time.Millisecond}}),
			middleware.RequireActor(),
			middleware.OutboxFlush(box),
			middleware.Transaction(factory, nil),
			middleware.Idempotency(memory.NewIdempotencyStore(time.Hour), nil),
		),
		Queries: middleware.ChainQueries(qBus, middleware.QueryRequireActor()),
	}
	return ginserver.NewRouter(
		config.Config{Env: "test"},
		obs.Middleware{Metrics: obs.NewMetrics()},
		obs.HealthHandlers{},
		ginserver.Handlers{Chat: handler, SendLimiter: limiter},
	)
}

type call struct {
	method  string
	path    string
	body    any
	user    string
	actAs   string
	idemKey string
}

func do(t *testing.T, router http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	if c.actAs != "" {
		req.Header.Set("X-Acting-As", c.actAs)
	}
	if c.idemKey != "" {
		req.Header.Set("Idempotency-Key", c.idemKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var ensureCar7 = map[string]any{
	"kind":          "user_dealer",
	"dealership_id": "42",
	"listing":       map[string]string{"kind": "sale", "id": "7"},
}

func TestConversationLifecycleOverHTTP(t *testing.T) {
	router := newRouter(t, nil)

	created := do(t, router, call{method: http.MethodPost, path: "/api/v1/conversations", body: ensureCar7, user: "u1"})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	conv := decode[dto.Conversation](t, created)
	require.NotNil(t, conv.Context)
	assert.Equal(t, "2019 Toyota Camry", conv.Context.Title)

	again := do(t, router, call{method: http.MethodPost, path: "/api/v1/conversations", body: ensureCar7, user: "u1"})
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, conv.ID, decode[dto.Conversation](t, again).ID)

	msgPath := "/api/v1/conversations/" + conv.ID + "/messages"
	first := do(t, router, call{method: http.MethodPost, path: msgPath, body: map[string]string{"body": "still available?"}, user: "u1", idemKey: "tap-1"})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	replay := do(t, router, call{method: http.MethodPost, path: msgPath, body: map[string]string{"body": "still available?"}, user: "u1", idemKey: "tap-1"})
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, decode[dto.ChatMessage](t, first).ID, decode[dto.ChatMessage](t, replay).ID)

	inbox := do(t, router, call{method: http.MethodGet, path: "/api/v1/conversations", user: "staff", actAs: "42"})
	require.Equal(t, http.StatusOK, inbox.Code)
	list := decode[dto.ConversationList](t, inbox)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Items[0].Unread)

	read := do(t, router, call{method: http.MethodPost, path: "/api/v1/conversations/" + conv.ID + "/read", user: "staff", actAs: "42"})
	require.Equal(t, http.StatusOK, read.Code)
	assert.Equal(t, 1, decode[dto.MarkReadResult](t, read).Transitioned)

	page := do(t, router, call{method: http.MethodGet, path: msgPath + "?direction=backward&limit=10", user: "u1"})
	require.Equal(t, http.StatusOK, page.Code)
	msgs := decode[dto.ChatMessageList](t, page)
	require.Len(t, msgs.Items, 1)
	assert.True(t, msgs.Items[0].IsRead)
	assert.Equal(t, "backward", msgs.Direction)
}

func TestErrorMapping(t *testing.T) {
	router := newRouter(t, nil)
	created := do(t, router, call{method: http.MethodPost, path: "/api/v1/conversations", body: ensureCar7, user: "u1"})
	require.Equal(t, http.StatusCreated, created.Code)
	id := decode[dto.Conversation](t, created).ID

	cases := []struct {
		name string
		call call
		code int
	}{
		{"no identity", call{method: http.MethodGet, path: "/api/v1/conversations"}, http.StatusUnauthorized},
		{"self chat", call{method: http.MethodPost, path: "/api/v1/conversations", user: "u1", body: map[string]any{"kind": "user_user", "seller_user_id": "u1"}}, http.StatusBadRequest},
		{"bad listing kind", call{method: http.MethodPost, path: "/api/v1/conversations", user: "u1", body: map[string]any{"kind": "user_dealer", "dealership_id": "42", "listing": map[string]string{"kind": "boat", "id": "1"}}}, http.StatusBadRequest},
		{"empty message", call{method: http.MethodPost, path: "/api/v1/conversations/" + id + "/messages", user: "u1", body: map[string]string{"body": "  "}}, http.StatusBadRequest},
		{"intruder", call{method: http.MethodPost, path: "/api/v1/conversations/" + id + "/messages", user: "u9", body: map[string]string{"body": "hi"}}, http.StatusForbidden},
		{"unknown conversation", call{method: http.MethodGet, path: "/api/v1/conversations/nope", user: "u1"}, http.StatusNotFound},
		{"bad cursor", call{method: http.MethodGet, path: "/api/v1/conversations/" + id + "/messages?cursor=%25%25", user: "u1"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, router, tc.call)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestSendRateLimit(t *testing.T) {
	router := newRouter(t, ginserver.SendRateLimit(0.001, 1))
	created := do(t, router, call{method: http.MethodPost, path: "/api/v1/conversations", body: ensureCar7, user: "u1"})
	require.Equal(t, http.StatusCreated, created.Code)
	path := "/api/v1/conversations/" + decode[dto.Conversation](t, created).ID + "/messages"

	ok := do(t, router, call{method: http.MethodPost, path: path, body: map[string]string{"body": "one"}, user: "u1"})
	require.Equal(t, http.StatusCreated, ok.Code)
	limited := do(t, router, call{method: http.MethodPost, path: path, body: map[string]string{"body": "two"}, user: "u1"})
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)

	other := do(t, router, call{method: http.MethodPost, path: path, body: map[string]string{"body": "reply"}, user: "staff", actAs: "42"})
	assert.Equal(t, http.StatusCreated, other.Code)
}

func TestMetricsAndHealthRoutes(t *testing.T) {
	router := newRouter(t, nil)
	require.Equal(t, http.StatusOK, do(t, router, call{method: http.MethodGet, path: "/livez"}).Code)
	require.Equal(t, http.StatusOK, do(t, router, call{method: http.MethodGet, path: "/readyz"}).Code)

	metrics := do(t, router, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.True(t, strings.Contains(metrics.Body.String(), "carchat_http_request_duration_seconds"))
}
