package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutSubscription_InvalidRequest(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPut, "/api/subscriptions", "user-1", map[string]any{"endpoint": "https://push.example/1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptions_PerUser(t *testing.T) {
	s := newTestServer(t)
	sub := map[string]any{"endpoint": "https://push.example/1", "p256dh": "key", "auth": "secret"}

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPut, "/api/subscriptions", "user-1", sub).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPut, "/api/subscriptions", "user-1", sub).Code)

	w := s.do(t, http.MethodGet, "/api/subscriptions", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"endpoints":["https://push.example/1"]}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/subscriptions", "user-2", nil)
	assert.JSONEq(t, `{"endpoints":[]}`, w.Body.String())

	// another user cannot remove it
	s.do(t, http.MethodDelete, "/api/subscriptions", "user-2", map[string]any{"endpoint": "https://push.example/1"})
	w = s.do(t, http.MethodGet, "/api/subscriptions", "user-1", nil)
	assert.Contains(t, w.Body.String(), "push.example/1")

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/subscriptions", "user-1", map[string]any{"endpoint": "https://push.example/1"}).Code)
	w = s.do(t, http.MethodGet, "/api/subscriptions", "user-1", nil)
	assert.JSONEq(t, `{"endpoints":[]}`, w.Body.String())
}

func TestGetVAPIDPublicKey(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"public-key"}`, w.Body.String())
}
