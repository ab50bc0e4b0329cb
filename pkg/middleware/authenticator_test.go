package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"messengerService/pkg/api"
)

type tokenProvider struct {
	api.AuthProvider
	identities map[string]api.Identity
}

func (p tokenProvider) VerifyIDToken(_ context.Context, idToken string) (api.Identity, error) {
	identity, ok := p.identities[idToken]
	if !ok {
		return api.Identity{}, api.ErrNotAuthenticated
	}
	return identity, nil
}

func TestAuthenticator(t *testing.T) {
	provider := tokenProvider{identities: map[string]api.Identity{"good": {UID: "u1"}}}

	var seen string
	handler := Authenticator(provider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := api.SessionFromContext(r.Context()).Require()
		if assert.NoError(t, err) {
			seen = identity.UID
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		build  func(r *http.Request)
		status int
	}{
		{name: "bearer header", build: func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, status: http.StatusNoContent},
		{name: "lowercase scheme", build: func(r *http.Request) { r.Header.Set("Authorization", "bearer good") }, status: http.StatusNoContent},
		{name: "query token", build: func(r *http.Request) { r.URL.RawQuery = "token=good" }, status: http.StatusNoContent},
		{name: "bad token", build: func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, status: http.StatusUnauthorized},
		{name: "no token", build: func(r *http.Request) {}, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			tt.build(r)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "u1", seen)
			}
		})
	}
}

func TestFindTokenPrefersHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/chat/ws?token=query", nil)
	r.Header.Set("Authorization", "Bearer header")
	assert.Equal(t, "header", findToken(r, tokenFromHeader, tokenFromQuery))
}
