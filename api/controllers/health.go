package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const (
	envHeader          = "X-PartyShop-Env"
	readyCheckDeadline = 2 * time.Second
)

// Pinger is satisfied by the database and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every dependency answers a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckDeadline)
		defer cancel()

		status := make(map[string]string, len(checks))
		var failed bool
		for name, pinger := range checks {
			if pinger == nil {
				continue
			}
			if err := pinger.Ping(ctx); err != nil {
				failed = true
				status[name] = "down"
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "dependency", name), "readiness check failed")
				}
				continue
			}
			status[name] = "up"
		}

		if failed {
			err := pkgerrors.NewReason(pkgerrors.CodeDependency, "DEPENDENCY_DOWN", "dependency unavailable").
				WithDetails(map[string]any{"checks": status})
			responses.WriteError(r.Context(), nil, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": status})
	}
}
