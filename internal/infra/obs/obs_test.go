package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesJSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "prod").Info("hello", "conversation_id", "c1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "c1", line["conversation_id"])
	assert.Contains(t, line, "source")
}

func TestMetricsCountDomainHooks(t *testing.T) {
	m := NewMetrics()
	m.ConversationEnsured(true)
	m.ConversationEnsured(false)
	m.ConversationEnsured(false)
	m.MessagesMarkedRead(3)
	m.MessagesMarkedRead(0)
	m.ObserveDispatch("command", "chat.message.send", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, counterValue(t, m, "carchat_conversations_ensured_total", "created"))
	assert.Equal(t, 2.0, counterValue(t, m, "carchat_conversations_ensured_total", "existing"))
	assert.Equal(t, 3.0, counterValue(t, m, "carchat_messages_marked_read_total", ""))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.MessageAppended()
		nilMetrics.ObserveHTTP("GET", "/", 200, time.Millisecond)
	})
}

func TestRequestIDAndReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mw := Middleware{Metrics: NewMetrics()}
	ready := errors.New("mongo down")
	health := HealthHandlers{Ready: func(context.Context) error { return ready }}

	r := gin.New()
	r.Use(mw.RequestID(), mw.LoggerMiddleware())
	r.GET("/readyz", health.Readyz)
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFromContext(c.Request.Context()))
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = nil
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func counterValue(t *testing.T, m *Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if label == "" {
				return metric.GetCounter().GetValue()
			}
			for _, pair := range metric.GetLabel() {
				if pair.GetValue() == label {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
