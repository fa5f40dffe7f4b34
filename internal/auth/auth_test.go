package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPVerifier_Verify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("token") {
		case "good":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"userId":42,"username":"carol"}`))
		case "bad":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL)

	id, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 42, Username: "carol"}, id)

	_, err = v.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrUnavailable)
}
