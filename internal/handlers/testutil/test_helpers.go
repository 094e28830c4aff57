package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/api"
	"github.com/charlesng35/careerhub/internal/app"
	iauth "github.com/charlesng35/careerhub/internal/auth"
	"github.com/charlesng35/careerhub/internal/cache"
	sharedtestutil "github.com/charlesng35/careerhub/internal/database/testutil"
	"github.com/charlesng35/careerhub/internal/models"
	"github.com/charlesng35/careerhub/internal/notifications"
	"github.com/charlesng35/careerhub/internal/onboarding"
	"github.com/charlesng35/careerhub/internal/realtime"
	"github.com/charlesng35/careerhub/internal/services"
	"github.com/charlesng35/careerhub/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T             *testing.T
	DB            *gorm.DB
	Router        *gin.Engine
	JWT           *iauth.JWTService
	Cache         *cache.MemoryStore
	Hub           *realtime.Hub
	Users         *services.UserService
	Ledger        *services.BonusLedger
	Notifications *services.NotificationService
	Sequencer     *onboarding.Sequencer
}

// NewEnv provisions a fresh handler test environment with migrations applied.
// Onboarding stages run on a real timer scheduler which is stopped on cleanup.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.NewDB(t)

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: jwtSecret, Issuer: "test-suite", TTL: time.Hour},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
		Welcome: app.WelcomeConfig{StatusTTL: 5 * time.Minute, MinInterval: 30 * time.Second},
	}

	store := cache.NewMemoryStore(nil)
	hub := realtime.NewHub()

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	ledger, err := services.NewBonusLedger(db, services.DefaultWelcomeBonus)
	require.NoError(t, err)
	languages := services.NewLanguageProvider(users, store, time.Minute)
	notifier, err := services.NewNotificationService(db, hub)
	require.NoError(t, err)
	settings, err := services.NewNotificationSettingsService(db, users, languages)
	require.NoError(t, err)
	welcome, err := services.NewWelcomeStatusService(ledger, users, store, cfg.Welcome.StatusConfig())
	require.NoError(t, err)
	resolver, err := notifications.DefaultResolver()
	require.NoError(t, err)

	sequencer, err := onboarding.NewSequencer(db, onboarding.Dependencies{
		Ledger:    ledger,
		Languages: languages,
		Templates: resolver,
		Sink:      notifier,
		Users:     users,
	}, onboarding.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(sequencer.Stop)
	users.OnDelete(sequencer.Forget)

	router, err := api.NewRouter(cfg, api.Dependencies{
		DB:            db,
		JWT:           jwtSvc,
		Notifications: notifier,
		Settings:      settings,
		WelcomeStatus: welcome,
		Claimer:       sequencer,
		Hub:           hub,
	})
	require.NoError(t, err)

	return &Env{
		T:             t,
		DB:            db,
		Router:        router,
		JWT:           jwtSvc,
		Cache:         store,
		Hub:           hub,
		Users:         users,
		Ledger:        ledger,
		Notifications: notifier,
		Sequencer:     sequencer,
	}
}

// CreateUser inserts an active user with a random username and returns the record.
func (e *Env) CreateUser(locale string) *models.User {
	e.T.Helper()

	username := "user-" + uuid.NewString()[:8]
	user, err := e.Users.Create(e.T.Context(), services.CreateUserInput{
		Username: username,
		Email:    username + "@example.com",
		Locale:   locale,
	})
	require.NoError(e.T, err)
	return user
}

// TokenFor issues an access token for the user.
func (e *Env) TokenFor(user *models.User) string {
	e.T.Helper()

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Name: user.Username})
	require.NoError(e.T, err)
	return token
}

// Notify stores a notification for the user through the notification service.
func (e *Env) Notify(userID, notificationType, title string) services.NotificationDTO {
	e.T.Helper()

	dto, err := e.Notifications.Create(e.T.Context(), services.CreateNotificationInput{
		UserID:  userID,
		Type:    notificationType,
		Title:   title,
		Message: title,
	})
	require.NoError(e.T, err)
	return *dto
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
