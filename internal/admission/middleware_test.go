package admission

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"roomgate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("handled"))
	})
}

func TestWithRateLimit_Allowed(t *testing.T) {
	checker := newFakeChecker(models.RateLimitResult{Allowed: true, Remaining: 42}, nil)
	rec := &recorder{}
	resolver := NewIdentityResolver("CF-Connecting-IP", models.UnknownIdentityShared)

	var called bool
	handler := WithRateLimit(checker, resolver, WithDecisionRecorder(rec))(okHandler(&called))

	req := httptest.NewRequest("GET", "/api/things", nil)
	req.Header.Set("CF-Connecting-IP", "1.2.3.4")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, w.Code, "handler result is returned unchanged")
	assert.Equal(t, "handled", w.Body.String())
	assert.Equal(t, "42", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 1, checker.count("api:1.2.3.4"))
	assert.Equal(t, []string{"api=allowed"}, rec.decisions)
}

func TestWithRateLimit_Denied(t *testing.T) {
	checker := newFakeChecker(models.RateLimitResult{Allowed: false, Remaining: 0}, nil)
	rec := &recorder{}
	resolver := NewIdentityResolver("CF-Connecting-IP", models.UnknownIdentityShared)

	var called bool
	handler := WithRateLimit(checker, resolver, WithDecisionRecorder(rec))(okHandler(&called))

	req := httptest.NewRequest("GET", "/api/things", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.False(t, called, "handler must not run on denial")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 1, checker.count("api:unknown"))

	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	assert.Equal(t, "Rate limit exceeded", errResp.Message)
	assert.Equal(t, models.ErrorCodeRateLimited, errResp.Code)
	assert.Equal(t, []string{"api=denied"}, rec.decisions)
}

func TestWithRateLimit_FailClosed(t *testing.T) {
	checker := newFakeChecker(models.RateLimitResult{}, ErrUnavailable)
	resolver := NewIdentityResolver("CF-Connecting-IP", models.UnknownIdentityShared)

	var called bool
	handler := WithRateLimit(checker, resolver)(okHandler(&called))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWithRateLimit_FailOpen(t *testing.T) {
	checker := newFakeChecker(models.RateLimitResult{}, ErrUnavailable)
	rec := &recorder{}
	resolver := NewIdentityResolver("CF-Connecting-IP", models.UnknownIdentityShared)

	var called bool
	handler := WithRateLimit(checker, resolver, WithFailOpen(true), WithDecisionRecorder(rec))(okHandler(&called))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"api=failed_open"}, rec.decisions)
}

func TestWithRateLimit_FailOpenOnlyForUnavailable(t *testing.T) {
	checker := newFakeChecker(models.RateLimitResult{}, errors.New("bad argument"))
	resolver := NewIdentityResolver("CF-Connecting-IP", models.UnknownIdentityShared)

	var called bool
	handler := WithRateLimit(checker, resolver, WithFailOpen(true))(okHandler(&called))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWithRateLimit_RejectsMissingIdentity(t *testing.T) {
	checker := newFakeChecker(models.RateLimitResult{Allowed: true}, nil)
	rec := &recorder{}
	resolver := NewIdentityResolver("CF-Connecting-IP", models.UnknownIdentityReject)

	var called bool
	handler := WithRateLimit(checker, resolver, WithDecisionRecorder(rec))(okHandler(&called))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, checker.count("api:unknown"), "no quota is consumed")
	assert.Equal(t, []string{"api=rejected"}, rec.decisions)
}

func TestWithRateLimit_LocalClientEndToEnd(t *testing.T) {
	client, _ := newLocalClient(t)
	resolver := NewIdentityResolver("CF-Connecting-IP", models.UnknownIdentityShared)

	var called bool
	handler := WithRateLimit(client, resolver)(okHandler(&called))

	for i := 0; i < models.APILimit; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("CF-Connecting-IP", "7.7.7.7")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusTeapot, w.Code, "request %d", i+1)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("CF-Connecting-IP", "7.7.7.7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Another caller is unaffected
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("CF-Connecting-IP", "8.8.8.8")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "99", w.Header().Get("X-RateLimit-Remaining"))
}
