package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/careerhub/internal/auth"
)

func issueToken(t *testing.T) (*iauth.JWTService, string) {
	t.Helper()

	svc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "middleware-secret",
		Issuer:         "careerhub-test",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-123", Name: "ada"})
	require.NoError(t, err)
	return svc, token
}

func identityRouter(path string, mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET(path, mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":   c.GetString(CtxUserIDKey),
			"user_name": c.GetString(CtxUserNameKey),
		})
	})
	return r
}

func TestAuth(t *testing.T) {
	svc, token := issueToken(t)
	r := identityRouter("/secure", Auth(svc))

	cases := []struct {
		name      string
		target    string
		header    string
		wantCode  int
		challenge bool
	}{
		{name: "missing header", target: "/secure", wantCode: http.StatusUnauthorized},
		{name: "query token ignored", target: "/secure?token=" + token, wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/secure", header: "Basic " + token, wantCode: http.StatusUnauthorized},
		{name: "garbage token", target: "/secure", header: "Bearer not-a-token", wantCode: http.StatusUnauthorized, challenge: true},
		{name: "valid token", target: "/secure", header: "Bearer " + token, wantCode: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)

			require.Equal(t, tc.wantCode, w.Code)
			if tc.challenge {
				require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
			}
			if tc.wantCode != http.StatusOK {
				return
			}
			var identity map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &identity))
			require.Equal(t, "user-123", identity["user_id"])
			require.Equal(t, "ada", identity["user_name"])
		})
	}
}

func TestStreamAuthAcceptsQueryToken(t *testing.T) {
	svc, token := issueToken(t)
	r := identityRouter("/stream", StreamAuth(svc))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream?token="+token, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "user-123")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
