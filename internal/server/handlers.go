package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/asanchez/btcfolio/internal/config"
	"github.com/asanchez/btcfolio/internal/modules/portfolio"
)

const dateLayout = "2006-01-02"

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "btcfolio",
	})
}

// accountID resolves the single configured account.
func (s *Server) accountID(w http.ResponseWriter) (uuid.UUID, bool) {
	account, err := s.accounts.Get()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load account")
		s.writeError(w, http.StatusInternalServerError, "account not available")
		return uuid.Nil, false
	}
	return account.ID, true
}

func (s *Server) handlePortfolioAssets(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w)
	if !ok {
		return
	}
	metrics, err := s.portfolio.AssetMetrics(accountID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute asset metrics")
		s.writeError(w, http.StatusInternalServerError, "failed to compute asset metrics")
		return
	}
	s.writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handlePortfolioLiquid(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w)
	if !ok {
		return
	}
	view, err := s.portfolio.LiquidBalances(accountID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute liquid balances")
		s.writeError(w, http.StatusInternalServerError, "failed to compute liquid balances")
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// dateRange parses optional from/to query params, defaulting to the
// tracked history epoch through today.
func dateRange(r *http.Request) (time.Time, time.Time, error) {
	from := config.HistoryEpoch
	to := time.Now().UTC()

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return from, to, err
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return from, to, err
		}
		to = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to, nil
}

func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w)
	if !ok {
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	points, err := s.portfolio.PerformanceHistory(accountID, from, to)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute performance history")
		s.writeError(w, http.StatusInternalServerError, "failed to compute history")
		return
	}
	s.writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w)
	if !ok {
		return
	}
	overview, err := s.portfolio.Overview(accountID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute overview")
		s.writeError(w, http.StatusInternalServerError, "failed to compute overview")
		return
	}
	s.writeJSON(w, http.StatusOK, overview)
}

// handlePerformance returns the value history plus the deepest drawdown.
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w)
	if !ok {
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	points, err := s.portfolio.PerformanceHistory(accountID, from, to)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute performance history")
		s.writeError(w, http.StatusInternalServerError, "failed to compute performance")
		return
	}
	drawdown, err := s.portfolio.Drawdown(accountID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute drawdown")
		s.writeError(w, http.StatusInternalServerError, "failed to compute performance")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"history":  points,
		"drawdown": drawdown,
	})
}

func (s *Server) handleDCA(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w)
	if !ok {
		return
	}
	asset := strings.ToUpper(chi.URLParam(r, "asset"))
	analysis, err := s.portfolio.DCAAnalysis(accountID, asset)
	if err != nil {
		s.log.Error().Err(err).Str("asset", asset).Msg("Failed to compute DCA analysis")
		s.writeError(w, http.StatusInternalServerError, "failed to compute DCA analysis")
		return
	}
	s.writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleBTCInsights(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w)
	if !ok {
		return
	}
	insights, err := s.portfolio.BTCInsights(accountID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute BTC insights")
		s.writeError(w, http.StatusInternalServerError, "failed to compute BTC insights")
		return
	}
	s.writeJSON(w, http.StatusOK, insights)
}

func (s *Server) handleDCASimulation(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w)
	if !ok {
		return
	}
	cadence := portfolio.DCACadence(r.URL.Query().Get("cadence"))
	if cadence == "" {
		cadence = portfolio.CadenceWeekly
	}
	sim, err := s.portfolio.SimulateDCA(accountID, cadence)
	if err != nil {
		s.log.Error().Err(err).Str("cadence", string(cadence)).Msg("Failed to simulate DCA")
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, sim)
}

func (s *Server) handleFiscalYear(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w)
	if !ok {
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	report, err := s.portfolio.FiscalYear(accountID, year)
	if err != nil {
		s.log.Error().Err(err).Int("year", year).Msg("Failed to compute fiscal year")
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleSyncTrigger spawns a background sync and returns its job id
// immediately. A second trigger while one runs reports already_running.
func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	job, ok := s.registry.TryStart()
	if !ok {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"status": "already_running",
			"job":    s.registry.Status(),
		})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		stats, err := s.sync.SyncAll(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("Triggered sync failed")
		}
		s.registry.Finish(job, stats, err != nil || stats.HasErrors())
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "started",
		"job_id": job.ID,
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.Get()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load account")
		s.writeError(w, http.StatusInternalServerError, "account not available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sync_status":  account.SyncStatus,
		"last_sync_at": account.LastSyncAt,
		"last_job":     s.registry.Status(),
	})
}

// handleGetSettings returns the account settings. Credentials are never
// echoed back, only whether they are configured.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.Get()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load account")
		s.writeError(w, http.StatusInternalServerError, "account not available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":            account.Name,
		"has_credentials": account.APIKeyEncrypted != "" && account.APISecretEncrypted != "",
		"sync_status":     account.SyncStatus,
		"last_sync_at":    account.LastSyncAt,
	})
}

// handleUpdateSettings stores the display name and, when provided, new
// API credentials encrypted at rest. Empty credential fields leave the
// stored ones untouched.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		APIKey    string `json:"api_key"`
		APISecret string `json:"api_secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.APIKey == "") != (req.APISecret == "") {
		s.writeError(w, http.StatusBadRequest, "api_key and api_secret must be provided together")
		return
	}

	account, err := s.accounts.Get()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load account")
		s.writeError(w, http.StatusInternalServerError, "account not available")
		return
	}

	var encKey, encSecret string
	if req.APIKey != "" {
		if encKey, err = s.secrets.Encrypt(req.APIKey); err == nil {
			encSecret, err = s.secrets.Encrypt(req.APISecret)
		}
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to encrypt credentials")
			s.writeError(w, http.StatusInternalServerError, "failed to store credentials")
			return
		}
	}

	name := req.Name
	if name == "" {
		name = account.Name
	}
	if err := s.accounts.UpdateSettings(account.ID, name, encKey, encSecret); err != nil {
		s.log.Error().Err(err).Msg("Failed to update settings")
		s.writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleLivePrice returns the current BTC price from public providers.
// Unauthenticated: it exposes only public market data.
func (s *Server) handleLivePrice(w http.ResponseWriter, r *http.Request) {
	quote := s.livePrice.GetBTCPrice(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"btc_eur": quote.BTCEUR,
		"btc_usd": quote.BTCUSD,
		"source":  quote.Source,
	})
}
