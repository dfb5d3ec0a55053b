// Package health expone /healthz.
package health

import (
	"context"
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/tokencore/internal/http/errors"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
)

// Check es una dependencia a verificar (store de cada realm, cache, etc).
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Controller responde 200 si todos los checks pasan, 503 si alguno falla.
type Controller struct {
	checks  []Check
	timeout time.Duration
	version string
}

func NewController(version string, checks ...Check) *Controller {
	return &Controller{checks: checks, timeout: 2 * time.Second, version: version}
}

type response struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	resp := response{Status: "ok", Version: c.version, Checks: make(map[string]string, len(c.checks))}
	status := http.StatusOK
	for _, chk := range c.checks {
		if err := chk.Ping(ctx); err != nil {
			logger.From(ctx).Warn("health check failed", logger.Component(chk.Name), logger.Err(err))
			resp.Checks[chk.Name] = "down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[chk.Name] = "up"
	}
	w.Header().Set("Cache-Control", "no-store")
	httperrors.WriteJSON(w, status, resp)
}
