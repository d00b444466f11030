package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/emberhollow/emberhollow-core/internal/application/progression"
	"github.com/emberhollow/emberhollow-core/internal/application/verification"
	"github.com/emberhollow/emberhollow-core/internal/domain/identity"
	"github.com/emberhollow/emberhollow-core/internal/domain/ledger"
	"github.com/emberhollow/emberhollow-core/internal/domain/rank"
	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

// API exposes the progression and verification services to the game
// servers over JSON.
type API struct {
	progression  *progression.Service
	verification *verification.Service
	log          *slog.Logger
}

// NewAPI creates the API handler set.
func NewAPI(prog *progression.Service, verif *verification.Service, log *slog.Logger) *API {
	return &API{progression: prog, verification: verif, log: log}
}

// register attaches the routes.
func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/players/{uuid}/seen", a.handleSeen)
	mux.HandleFunc("POST /v1/players/{uuid}/departed", a.handleDeparted)
	mux.HandleFunc("GET /v1/players/{uuid}/online", a.handleOnline)
	mux.HandleFunc("GET /v1/stats/online", a.handleOnlineCount)
	mux.HandleFunc("POST /v1/players/{uuid}/gains", a.handleGain)
	mux.HandleFunc("POST /v1/players/{uuid}/achievements", a.handleAchievement)
	mux.HandleFunc("POST /v1/players/{uuid}/evaluate", a.handleEvaluate)
	mux.HandleFunc("GET /v1/players/{uuid}/rank", a.handleRank)
	mux.HandleFunc("GET /v1/players/{uuid}/experience", a.handleExperience)
	mux.HandleFunc("GET /v1/players/{uuid}/events", a.handleEvents)
	mux.HandleFunc("POST /v1/players/{uuid}/verification/begin", a.handleVerifyBegin)
	mux.HandleFunc("POST /v1/players/{uuid}/verification/complete", a.handleVerifyComplete)
	mux.HandleFunc("POST /v1/players/{uuid}/verification/reset", a.handleVerifyReset)
	mux.HandleFunc("GET /v1/players/{uuid}/verification", a.handleVerifyStatus)
	mux.HandleFunc("GET /v1/players/{uuid}/whitelisted", a.handleWhitelisted)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

func (a *API) handleSeen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
		Platform    string `json:"platform"`
	}
	if !a.decode(w, r, &req) {
		return
	}

	platform := identity.PlatformFlag(req.Platform)
	if !platform.IsValid() {
		platform = identity.PlatformPrimary
	}

	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	err := a.progression.PlayerSeen(r.Context(), id, req.DisplayName, platform, time.Now())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) handleDeparted(w http.ResponseWriter, r *http.Request) {
	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	if err := a.progression.PlayerDeparted(r.Context(), id, time.Now()); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) handleOnline(w http.ResponseWriter, r *http.Request) {
	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	online, sighting, err := a.progression.IsOnline(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}

	resp := map[string]any{"online": online}
	if !sighting.IsZero() {
		resp["last_sighting"] = sighting
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleOnlineCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.progression.OnlinePlayers(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"online": count})
}

func (a *API) handleGain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source   string         `json:"source"`
		Amount   int64          `json:"amount"`
		Metadata map[string]any `json:"metadata"`
	}
	if !a.decode(w, r, &req) {
		return
	}

	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	receipt, err := a.progression.RequestGain(r.Context(), id, req.Source, req.Amount, req.Metadata, time.Now())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) handleAchievement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if !a.decode(w, r, &req) {
		return
	}

	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	receipt, err := a.progression.RecordAchievement(r.Context(), id, req.Source, time.Now())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	promo, err := a.progression.Evaluate(r.Context(), id, time.Now())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if promo == nil {
		a.writeJSON(w, http.StatusOK, map[string]any{"promoted": false})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"promoted":        true,
		"from":            promo.From.String(),
		"to":              promo.To.String(),
		"rank":            promo.DisplayName,
		"reward_amount":   promo.RewardAmount,
		"reward_commands": promo.RewardCommands,
	})
}

func (a *API) handleRank(w http.ResponseWriter, r *http.Request) {
	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	view, err := a.progression.CurrentRank(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}

	resp := map[string]any{
		"position":     view.Position.String(),
		"rank":         view.DisplayName,
		"playtime":     view.PlaytimeMinutes,
		"achievements": view.AchievementsComplete,
	}
	if view.NextThreshold != nil {
		resp["next_required_minutes"] = view.NextThreshold.RequiredMinutes
		resp["next_required_achievements"] = view.NextThreshold.RequiredAchievements
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleExperience(w http.ResponseWriter, r *http.Request) {
	id, ok := a.playerID(w, r)
	if !ok {
		return
	}
	total, err := a.progression.TotalExperience(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}

	resp := map[string]any{"total": total}
	if r.URL.Query().Get("breakdown") == "true" {
		breakdown, err := a.progression.ExperienceBySource(r.Context(), id, time.Time{})
		if err != nil {
			a.writeError(w, err)
			return
		}
		resp["by_source"] = breakdown
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	events, err := a.progression.RecentEvents(r.Context(), id, limit)
	if err != nil {
		a.writeError(w, err)
		return
	}

	payload := make([]map[string]any, 0, len(events))
	for _, e := range events {
		payload = append(payload, map[string]any{
			"id":          e.ID,
			"kind":        e.Kind.String(),
			"source":      e.Source,
			"amount":      e.Amount,
			"occurred_at": e.OccurredAt,
			"server":      e.OriginServer,
		})
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"events": payload})
}

// ══════════════════════════════════════════════════════════════════════════════
// VERIFICATION
// ══════════════════════════════════════════════════════════════════════════════

func (a *API) handleVerifyBegin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExternalID   string `json:"external_id"`
		ExternalName string `json:"external_name"`
	}
	if !a.decode(w, r, &req) {
		return
	}

	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	err := a.verification.Begin(r.Context(), id, req.ExternalID, req.ExternalName, time.Now())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) handleVerifyComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	if err := a.verification.Complete(r.Context(), id, time.Now()); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) handleVerifyReset(w http.ResponseWriter, r *http.Request) {
	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	if err := a.verification.Reset(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) handleVerifyStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	status, err := a.verification.StatusOf(r.Context(), id, time.Now())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"state":         string(status.State),
		"external_id":   status.ExternalID,
		"external_name": status.ExternalName,
		"expired":       status.Expired,
	})
}

func (a *API) handleWhitelisted(w http.ResponseWriter, r *http.Request) {
	id, ok := a.playerID(w, r)
	if !ok {
		return
	}

	allowed, err := a.verification.IsWhitelisted(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"whitelisted": allowed})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// playerID validates the route uuid and returns it in canonical form.
func (a *API) playerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	parsed, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid player uuid"})
		return "", false
	}
	return parsed.String(), true
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return false
	}
	return true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.log.Warn("response write failed", logger.Err(err))
	}
}

// writeError maps domain errors onto HTTP statuses.
func (a *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, identity.ErrPlayerNotFound),
		errors.Is(err, rank.ErrProgressNotFound),
		errors.Is(err, rank.ErrDefinitionNotFound),
		errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidStateTransition),
		errors.Is(err, verification.ErrExternalIDTaken),
		errors.Is(err, shared.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, ledger.ErrEmptySource),
		errors.Is(err, ledger.ErrEmptyPlayerID),
		errors.Is(err, identity.ErrInvalidDisplayName),
		errors.Is(err, identity.ErrEmptyExternalID):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		a.log.Error("request failed", logger.Err(err))
	}
	a.writeJSON(w, status, map[string]any{"error": err.Error()})
}
