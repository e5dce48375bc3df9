package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"regime-trader/config"
	"regime-trader/logging"
	"regime-trader/models"
	"regime-trader/strategy"
)

type statusResponse struct {
	Time   time.Time             `json:"time"`
	Symbol string                `json:"symbol"`
	Engine models.EngineSnapshot `json:"engine"`
}

// StartServer starts a local HTTP status server for diagnostics.
func StartServer(cfg *config.Config, engine *strategy.Engine, logger logging.LoggerInterface) *http.Server {
	addr := strings.TrimSpace(cfg.StatusAddr)
	if addr == "" || strings.EqualFold(addr, "off") || strings.EqualFold(addr, "disabled") {
		logger.Info("Status server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			Time:   time.Now(),
			Symbol: cfg.Symbol,
			Engine: engine.Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("status encode failed: %v", err)
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("Status server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server stopped: %v", err)
		}
	}()
	return srv
}
