package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/htangden/lastbil-optimering/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	pc := s.Config.Planner
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"go":    runtime.Version(),
		"planner": map[string]any{
			"conversionFactor": pc.ConversionFactor,
			"solver":           pc.Solver,
			"workers":          pc.Workers,
			"maxNodes":         pc.MaxNodes,
			"sinkRelay":        pc.SinkRelay,
			"verifySolutions":  pc.VerifySolutions,
		},
		"config": map[string]any{
			"port":               s.Config.Server.Port,
			"rateRps":            s.Config.Server.RateRPS,
			"rateBurst":          s.Config.Server.RateBurst,
			"webhookMaxAttempts": s.Config.Webhooks.MaxAttempts,
			"hasDatabaseUrl":     s.Config.Database.URL != "",
			"hasRedisUrl":        s.Config.Redis.URL != "",
			"authMode":           s.Config.Auth.Mode,
		},
	})
}
