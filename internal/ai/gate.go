package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lexiprep/lexiprep/internal/api"
	"github.com/lexiprep/lexiprep/internal/auth"
	"github.com/lexiprep/lexiprep/internal/metrics"
	"github.com/lexiprep/lexiprep/internal/quota"
)

type contextKey string

const decisionKey contextKey = "quota_decision"

// QuotaWarningHeader is set when the user is close to exhausting the window.
const QuotaWarningHeader = "X-AI-Quota-Warning"

const upgradeURL = "/pricing"

// quotaExceededBody is the 429 payload for an exhausted quota.
type quotaExceededBody struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	Quota      QuotaView `json:"quota"`
	UpgradeURL string    `json:"upgradeUrl,omitempty"`
}

// Gate admits AI requests only while the caller has quota left. It consumes
// one unit up front; a failed AI call afterwards does not refund it.
type Gate struct {
	limiter       *quota.Limiter
	burst         *BurstLimiter
	warnThreshold int
}

// NewGate creates the quota gate. burst may be nil to disable the
// per-user burst guard.
func NewGate(limiter *quota.Limiter, burst *BurstLimiter, warnThreshold int) *Gate {
	return &Gate{limiter: limiter, burst: burst, warnThreshold: warnThreshold}
}

// Middleware enforces the quota for every request it wraps. Storage errors
// deny the request: quota must never be silently bypassed.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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

		if g.burst != nil {
			allowed, err := g.burst.Allow(r.Context(), userID)
			if err != nil {
				slog.Warn("burst limiter: redis error, failing open", "error", err, "user_id", userID)
			} else if !allowed {
				w.Header().Set("Retry-After", "60")
				api.JSONErrorMessage(w, http.StatusTooManyRequests, "too many requests, slow down")
				return
			}
		}

		decision, err := g.limiter.CheckAndConsume(r.Context(), userID)
		if err != nil {
			if errors.Is(err, quota.ErrUserNotFound) {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}
			slog.Error("quota check failed, denying request", "error", err, "user_id", userID)
			api.HandleError(w, api.ErrInternalServer)
			return
		}

		if !decision.Allowed {
			metrics.QuotaDeniedTotal.WithLabelValues(string(decision.Tier)).Inc()
			writeQuotaExceeded(w, decision)
			return
		}

		if decision.Remaining > 0 && decision.Remaining <= g.warnThreshold {
			w.Header().Set(QuotaWarningHeader,
				fmt.Sprintf("%d requests remaining today", decision.Remaining))
		}

		ctx := context.WithValue(r.Context(), decisionKey, decision)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetDecision returns the quota decision the gate stored for this request.
func GetDecision(ctx context.Context) (quota.Decision, bool) {
	d, ok := ctx.Value(decisionKey).(quota.Decision)
	return d, ok
}

func writeQuotaExceeded(w http.ResponseWriter, d quota.Decision) {
	body := quotaExceededBody{
		Error: "AI request limit exceeded",
		Quota: quotaView(d),
	}
	if d.Tier == quota.TierPremium {
		body.Message = "You have used all your AI requests for this period. Your quota resets at " +
			d.ResetAt.Format(time.RFC3339) + "."
	} else {
		body.Message = "You have used all your free AI requests for today. Upgrade to premium for a higher limit."
		body.UpgradeURL = upgradeURL
	}

	retryAfter := int(time.Until(d.ResetAt).Seconds())
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(body)
}

// BurstLimiter caps per-user request bursts with a Redis sliding window.
// It protects the AI provider from rapid-fire clients; the daily quota
// remains the source of truth for allowance.
type BurstLimiter struct {
	client    redis.Cmdable
	maxPerMin int
}

func NewBurstLimiter(client redis.Cmdable, maxPerMin int) *BurstLimiter {
	return &BurstLimiter{client: client, maxPerMin: maxPerMin}
}

func (b *BurstLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	key := "ratelimit:ai:" + userID.String()
	now := time.Now()
	windowStart := float64(now.Add(-time.Minute).UnixMilli())

	pipe := b.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, time.Minute+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return countCmd.Val() < int64(b.maxPerMin), nil
}
