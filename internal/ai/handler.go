package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lexiprep/lexiprep/internal/api"
	"github.com/lexiprep/lexiprep/internal/auth"
	"github.com/lexiprep/lexiprep/internal/metrics"
	"github.com/lexiprep/lexiprep/internal/quota"
	"github.com/lexiprep/lexiprep/internal/usage"
)

type Handler struct {
	svc      *Service
	ledger   *usage.Ledger
	agg      *usage.Aggregator
	validate *validator.Validate
}

func NewHandler(svc *Service, ledger *usage.Ledger, agg *usage.Aggregator) *Handler {
	return &Handler{
		svc:      svc,
		ledger:   ledger,
		agg:      agg,
		validate: validator.New(),
	}
}

type enhanceVocabResponse struct {
	Enhancement *VocabEnhancement `json:"enhancement"`
	TokensUsed  int               `json:"tokensUsed"`
	Quota       QuotaView         `json:"quota"`
}

type practiceFeedbackResponse struct {
	Feedback   *PracticeFeedback `json:"feedback"`
	TokensUsed int               `json:"tokensUsed"`
	Quota      QuotaView         `json:"quota"`
}

type suggestionsResponse struct {
	Suggestions []WordSuggestion `json:"suggestions"`
	TokensUsed  int              `json:"tokensUsed"`
	Quota       QuotaView        `json:"quota"`
}

func (h *Handler) EnhanceVocab(w http.ResponseWriter, r *http.Request) {
	userID, decision, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}

	var req EnhanceVocabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	start := time.Now()
	result, err := h.svc.EnhanceVocabulary(r.Context(), req)
	elapsed := time.Since(start)

	if err != nil {
		h.record(r.Context(), usage.Event{
			UserID:         userID,
			Endpoint:       usage.EndpointEnhanceVocab,
			TokensUsed:     0,
			ResponseTimeMs: int(elapsed.Milliseconds()),
			Success:        false,
			ErrorMessage:   err.Error(),
		})
		metrics.AIRequestsTotal.WithLabelValues(usage.EndpointEnhanceVocab, "error").Inc()
		slog.Error("vocabulary enhancement failed", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.record(r.Context(), usage.Event{
		UserID:         userID,
		Endpoint:       usage.EndpointEnhanceVocab,
		TokensUsed:     result.TokensUsed,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		Success:        true,
	})
	metrics.AIRequestsTotal.WithLabelValues(usage.EndpointEnhanceVocab, "success").Inc()
	metrics.AITokensTotal.WithLabelValues(usage.EndpointEnhanceVocab).Add(float64(result.TokensUsed))

	api.JSON(w, http.StatusOK, enhanceVocabResponse{
		Enhancement: result,
		TokensUsed:  result.TokensUsed,
		Quota:       quotaView(decision),
	})
}

func (h *Handler) PracticeFeedback(w http.ResponseWriter, r *http.Request) {
	userID, decision, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}

	var req PracticeFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	start := time.Now()
	result, err := h.svc.PracticeFeedback(r.Context(), req)
	elapsed := time.Since(start)

	if err != nil {
		h.record(r.Context(), usage.Event{
			UserID:         userID,
			Endpoint:       usage.EndpointPracticeFeedback,
			TokensUsed:     0,
			ResponseTimeMs: int(elapsed.Milliseconds()),
			Success:        false,
			ErrorMessage:   err.Error(),
			VocabularyID:   req.VocabularyID,
		})
		metrics.AIRequestsTotal.WithLabelValues(usage.EndpointPracticeFeedback, "error").Inc()
		slog.Error("practice feedback failed", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.record(r.Context(), usage.Event{
		UserID:         userID,
		Endpoint:       usage.EndpointPracticeFeedback,
		TokensUsed:     result.TokensUsed,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		Success:        true,
		VocabularyID:   req.VocabularyID,
	})
	metrics.AIRequestsTotal.WithLabelValues(usage.EndpointPracticeFeedback, "success").Inc()
	metrics.AITokensTotal.WithLabelValues(usage.EndpointPracticeFeedback).Add(float64(result.TokensUsed))

	api.JSON(w, http.StatusOK, practiceFeedbackResponse{
		Feedback:   result,
		TokensUsed: result.TokensUsed,
		Quota:      quotaView(decision),
	})
}

func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	userID, decision, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}

	var req SuggestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	start := time.Now()
	result, err := h.svc.Suggestions(r.Context(), req)
	elapsed := time.Since(start)

	if err != nil {
		h.record(r.Context(), usage.Event{
			UserID:         userID,
			Endpoint:       usage.EndpointSuggestions,
			TokensUsed:     0,
			ResponseTimeMs: int(elapsed.Milliseconds()),
			Success:        false,
			ErrorMessage:   err.Error(),
		})
		metrics.AIRequestsTotal.WithLabelValues(usage.EndpointSuggestions, "error").Inc()
		slog.Error("word suggestions failed", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.record(r.Context(), usage.Event{
		UserID:         userID,
		Endpoint:       usage.EndpointSuggestions,
		TokensUsed:     result.TokensUsed,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		Success:        true,
	})
	metrics.AIRequestsTotal.WithLabelValues(usage.EndpointSuggestions, "success").Inc()
	metrics.AITokensTotal.WithLabelValues(usage.EndpointSuggestions).Add(float64(result.TokensUsed))

	api.JSON(w, http.StatusOK, suggestionsResponse{
		Suggestions: result.Suggestions,
		TokensUsed:  result.TokensUsed,
		Quota:       quotaView(decision),
	})
}

// UsageStats returns the caller's own quota state and usage history.
func (h *Handler) UsageStats(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	stats, err := h.agg.UserStats(r.Context(), userID)
	if err != nil {
		slog.Error("loading usage stats", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, stats)
}

// requestIdentity extracts the authenticated user and the gate's quota
// decision. Both are guaranteed by the route middleware; their absence
// means the handler was mounted without it.
func (h *Handler) requestIdentity(w http.ResponseWriter, r *http.Request) (uuid.UUID, quota.Decision, bool) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, quota.Decision{}, false
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, quota.Decision{}, false
	}
	decision, ok := GetDecision(r.Context())
	if !ok {
		slog.Error("quota decision missing from request context", "path", r.URL.Path)
		api.HandleError(w, api.ErrInternalServer)
		return uuid.Nil, quota.Decision{}, false
	}
	return userID, decision, true
}

func (h *Handler) record(ctx context.Context, ev usage.Event) {
	if err := h.ledger.Record(ctx, ev); err != nil {
		slog.Warn("recording usage event", "error", err, "endpoint", ev.Endpoint)
	}
}
