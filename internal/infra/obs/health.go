package obs

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthHandlers exposes endpoints for liveness and readiness checks.
type HealthHandlers struct {
	Ready func(ctx context.Context) error
}

func (h HealthHandlers) Livez(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h HealthHandlers) Readyz(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.Status(http.StatusOK)
}

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "carchat.v1.Chat"

// WatchReadiness keeps the gRPC health status in step with ready until ctx ends.
func WatchReadiness(ctx context.Context, srv *health.Server, ready func(context.Context) error, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		every = 5 * time.Second
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	check := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if ready != nil {
			checkCtx, cancel := context.WithTimeout(ctx, every)
			err := ready(checkCtx)
			cancel()
			if err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				if last != status && logger != nil {
					logger.Warn("store not ready", "error", err)
				}
			}
		}
		if status != last {
			srv.SetServingStatus("", status)
			srv.SetServingStatus(ServiceName, status)
			last = status
		}
	}

	check()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
