package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lexiprep/lexiprep/internal/api"
	"github.com/lexiprep/lexiprep/internal/quota"
	"github.com/lexiprep/lexiprep/internal/usage"
	"github.com/lexiprep/lexiprep/internal/users"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Handler struct {
	userSvc  *users.Service
	limiter  *quota.Limiter
	agg      *usage.Aggregator
	validate *validator.Validate
}

func NewHandler(userSvc *users.Service, limiter *quota.Limiter, agg *usage.Aggregator) *Handler {
	return &Handler{
		userSvc:  userSvc,
		limiter:  limiter,
		agg:      agg,
		validate: validator.New(),
	}
}

type userView struct {
	ID                    uuid.UUID  `json:"id"`
	Email                 string     `json:"email"`
	Role                  string     `json:"role"`
	SubscriptionTier      string     `json:"subscription_tier"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	AIRequestsRemaining   int        `json:"ai_requests_remaining"`
	AIResetAt             time.Time  `json:"ai_reset_at"`
	CreatedAt             time.Time  `json:"created_at"`
}

func toUserView(u users.User) userView {
	return userView{
		ID:                    u.ID,
		Email:                 u.Email,
		Role:                  u.Role,
		SubscriptionTier:      u.SubscriptionTier,
		SubscriptionExpiresAt: u.SubscriptionExpiresAt,
		AIRequestsRemaining:   u.AIRequestsRemaining,
		AIResetAt:             u.AIResetAt,
		CreatedAt:             u.CreatedAt,
	}
}

// ListUsers returns a paginated user listing with optional tier and
// email-search filters.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := users.ListParams{
		Tier:     q.Get("tier"),
		Search:   q.Get("search"),
		Page:     1,
		PageSize: defaultPageSize,
	}
	if params.Tier != "" {
		if _, err := quota.ParseTier(params.Tier); err != nil {
			api.HandleError(w, api.NewBadRequestError("unknown subscription tier"))
			return
		}
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		params.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil && v > 0 {
		params.PageSize = min(v, maxPageSize)
	}

	list, total, err := h.userSvc.List(r.Context(), params)
	if err != nil {
		slog.Error("listing users", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	views := make([]userView, 0, len(list))
	for _, u := range list {
		views = append(views, toUserView(u))
	}

	api.JSONPaginated(w, http.StatusOK, views, total, params.Page, params.PageSize)
}

type updateSubscriptionRequest struct {
	Tier      string     `json:"tier" validate:"required,oneof=free premium"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// UpdateSubscription changes a user's tier and reseeds the AI quota so the
// new allowance takes effect immediately, regardless of what was left under
// the old tier.
func (h *Handler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user id"))
		return
	}

	var req updateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	tier, err := quota.ParseTier(req.Tier)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("unknown subscription tier"))
		return
	}

	user, err := h.userSvc.GetByID(r.Context(), userID)
	if err != nil {
		slog.Error("loading user for tier change", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		api.HandleError(w, api.NewNotFoundError("user not found"))
		return
	}

	if err := h.userSvc.UpdateTier(r.Context(), userID, string(tier), req.ExpiresAt); err != nil {
		slog.Error("updating subscription tier", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	state, err := h.limiter.Reseed(r.Context(), userID, tier)
	if err != nil {
		slog.Error("reseeding quota after tier change", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("subscription tier changed",
		"user_id", userID, "tier", tier, "remaining", state.Remaining)

	api.JSON(w, http.StatusOK, map[string]any{
		"user_id":               userID,
		"subscription_tier":     string(tier),
		"ai_requests_remaining": state.Remaining,
		"ai_reset_at":           state.ResetAt,
	})
}

// UserAIUsage returns another user's quota state and usage history.
func (h *Handler) UserAIUsage(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user id"))
		return
	}

	stats, err := h.agg.UserStats(r.Context(), userID)
	if err != nil {
		if errors.Is(err, quota.ErrUserNotFound) {
			api.HandleError(w, api.NewNotFoundError("user not found"))
			return
		}
		slog.Error("loading user AI usage", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, stats)
}

// SystemStats returns platform-wide AI usage for today and this month.
func (h *Handler) SystemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.agg.SystemStats(r.Context())
	if err != nil {
		slog.Error("loading system AI stats", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, stats)
}
