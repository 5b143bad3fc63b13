package health

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payone-gateway/internal/common"
)

// Checker serves liveness and readiness probes.
type Checker struct {
	Pool   *pgxpool.Pool
	Redis  redis.UniversalClient
	Logger zerolog.Logger
}

// Live reports process liveness.
func (c *Checker) Live(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the service can reach its dependencies.
func (c *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"postgres": "ok", "redis": "ok"}
	healthy := true
	if c.Pool != nil {
		if err := c.Pool.Ping(ctx); err != nil {
			c.Logger.Warn().Err(err).Msg("postgres not ready")
			checks["postgres"] = "unavailable"
			healthy = false
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			c.Logger.Warn().Err(err).Msg("redis not ready")
			checks["redis"] = "unavailable"
			healthy = false
		}
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, map[string]any{"status": checks})
}
