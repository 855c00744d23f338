//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _uniqueCounter int64

func uniqueID() int64 {
	_uniqueCounter++
	return _uniqueCounter
}

func enhanceBody() map[string]string {
	return map[string]string{"word": "ephemeral", "meaning": "lasting a very short time"}
}

func userIDByEmail(t *testing.T, env *TestEnv, email string) uuid.UUID {
	t.Helper()
	user, err := env.UserSvc.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, user)
	return user.ID
}

func setRemaining(t *testing.T, env *TestEnv, userID uuid.UUID, remaining int) {
	t.Helper()
	_, err := env.Pool.Exec(context.Background(),
		`UPDATE users SET ai_requests_remaining = $1 WHERE id = $2`, remaining, userID)
	require.NoError(t, err)
}

func TestAI_EnhanceVocab_ConsumesQuota(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("consume-%d@test.com", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")

	resp := DoRequest(t, env, "POST", "/api/v1/ai/enhance-vocab", enhanceBody(), token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)

	q := data["quota"].(map[string]any)
	assert.Equal(t, float64(testFreeLimit-1), q["remaining"])
	assert.Equal(t, "free", q["tier"])

	enhancement := data["enhancement"].(map[string]any)
	assert.Equal(t, "m", enhancement["enhancedMeaning"])
	assert.Equal(t, float64(42), data["tokensUsed"])
}

func TestAI_QuotaExhausted_Returns429(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("exhausted-%d@test.com", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")

	userID := userIDByEmail(t, env, email)
	setRemaining(t, env, userID, 0)

	resp := DoRequest(t, env, "POST", "/api/v1/ai/enhance-vocab", enhanceBody(), token)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	result := ParseResponse(t, resp)
	assert.Equal(t, "AI request limit exceeded", result["error"])
	q := result["quota"].(map[string]any)
	assert.Equal(t, float64(0), q["remaining"])
	assert.Equal(t, "free", q["tier"])
	assert.NotEmpty(t, q["resetAt"])
	assert.Equal(t, "/pricing", result["upgradeUrl"])
}

func TestAI_LowQuota_SetsWarningHeader(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("warning-%d@test.com", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")

	userID := userIDByEmail(t, env, email)
	setRemaining(t, env, userID, 6)

	// Consuming one leaves 5 — inside the warning band.
	resp := DoRequest(t, env, "POST", "/api/v1/ai/enhance-vocab", enhanceBody(), token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("X-AI-Quota-Warning"), "5 requests remaining")
	resp.Body.Close()
}

func TestAI_FailedCall_DoesNotRefundQuota(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("norefund-%d@test.com", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")
	userID := userIDByEmail(t, env, email)

	env.AIClient.fail = true
	t.Cleanup(func() { env.AIClient.fail = false })

	resp := DoRequest(t, env, "POST", "/api/v1/ai/enhance-vocab", enhanceBody(), token)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()

	state, err := env.Limiter.Current(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, testFreeLimit-1, state.Remaining)
}

func TestAI_UsageStats(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("stats-%d@test.com", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")

	resp := DoRequest(t, env, "POST", "/api/v1/ai/enhance-vocab", enhanceBody(), token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", "/api/v1/ai/usage-stats", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)

	current := data["current_period"].(map[string]any)
	assert.Equal(t, float64(testFreeLimit), current["limit"])
	assert.Equal(t, float64(1), current["used"])
	assert.Equal(t, float64(testFreeLimit-1), current["remaining"])
	assert.Equal(t, float64(1), data["total_lifetime_requests"])
}

func TestAI_Unauthenticated_Returns401(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "POST", "/api/v1/ai/enhance-vocab", enhanceBody(), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestAdmin_TierChange_ReseedsQuota(t *testing.T) {
	env := SetupTestEnv(t)

	adminEmail := fmt.Sprintf("admin-%d@test.com", uniqueID())
	RegisterUser(t, env, adminEmail, "password123")
	adminID := userIDByEmail(t, env, adminEmail)
	_, err := env.Pool.Exec(context.Background(),
		`UPDATE users SET role = 'admin' WHERE id = $1`, adminID)
	require.NoError(t, err)
	adminToken := LoginUser(t, env, adminEmail, "password123")

	email := fmt.Sprintf("upgraded-%d@test.com", uniqueID())
	RegisterUser(t, env, email, "password123")
	userToken := LoginUser(t, env, email, "password123")
	userID := userIDByEmail(t, env, email)

	// Burn some free quota first.
	resp := DoRequest(t, env, "POST", "/api/v1/ai/enhance-vocab", enhanceBody(), userToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "PATCH", fmt.Sprintf("/api/v1/admin/users/%s/subscription", userID),
		map[string]string{"tier": "premium"}, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	assert.Equal(t, "premium", data["subscription_tier"])
	assert.Equal(t, float64(testPremiumLimit), data["ai_requests_remaining"])

	// The next request draws from the fresh premium allowance.
	resp = DoRequest(t, env, "POST", "/api/v1/ai/enhance-vocab", enhanceBody(), userToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reqResult := ParseResponse(t, resp)
	q := reqResult["data"].(map[string]any)["quota"].(map[string]any)
	assert.Equal(t, float64(testPremiumLimit-1), q["remaining"])
	assert.Equal(t, "premium", q["tier"])
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("notadmin-%d@test.com", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")

	resp := DoRequest(t, env, "GET", "/api/v1/admin/users", nil, token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestAdmin_SystemStats(t *testing.T) {
	env := SetupTestEnv(t)

	adminEmail := fmt.Sprintf("sysadmin-%d@test.com", uniqueID())
	RegisterUser(t, env, adminEmail, "password123")
	adminID := userIDByEmail(t, env, adminEmail)
	_, err := env.Pool.Exec(context.Background(),
		`UPDATE users SET role = 'admin' WHERE id = $1`, adminID)
	require.NoError(t, err)
	adminToken := LoginUser(t, env, adminEmail, "password123")

	resp := DoRequest(t, env, "GET", "/api/v1/admin/ai-stats", nil, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	assert.Contains(t, data, "today")
	assert.Contains(t, data, "this_month")
	assert.Contains(t, data, "users")
}
