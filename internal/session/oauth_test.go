package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthExchanger_RefreshGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "app-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "app-secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer","access_token":"new-access",
			"refresh_token":"new-refresh","expires_in":7200}`))
	}))
	defer srv.Close()

	ex := NewOAuthExchanger("app-id", "app-secret", srv.URL, srv.Client())

	grant, err := ex.Exchange(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", grant.AccessToken)
	assert.Equal(t, "new-refresh", grant.RefreshToken)
	assert.Equal(t, 7200*time.Second, grant.TTL)
}

func TestOAuthExchanger_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token expired"}`))
	}))
	defer srv.Close()

	ex := NewOAuthExchanger("app-id", "", srv.URL, nil)

	_, err := ex.Exchange(context.Background(), "dead")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}
