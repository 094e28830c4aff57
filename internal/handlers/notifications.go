package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/careerhub/internal/realtime"
	"github.com/charlesng35/careerhub/internal/services"
	appErrors "github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/response"
)

// NotificationStore is the query and mutation surface the handler needs.
type NotificationStore interface {
	List(ctx context.Context, input services.ListNotificationsInput) (*services.NotificationPage, error)
	MarkRead(ctx context.Context, userID, notificationID string) (*services.NotificationDTO, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, notificationID string) error
	ClearAll(ctx context.Context, userID string) (int64, error)
	Stats(ctx context.Context, userID string) (*services.NotificationStats, error)
}

// SettingsStore reads and writes per-user notification preferences.
type SettingsStore interface {
	Get(ctx context.Context, userID string) (services.NotificationSettingsDTO, error)
	MutedTypes(ctx context.Context, userID string) ([]string, error)
	Update(ctx context.Context, userID string, input services.UpdateNotificationSettingsInput) (services.NotificationSettingsDTO, error)
}

// NotificationHandler exposes notification endpoints.
type NotificationHandler struct {
	service  NotificationStore
	settings SettingsStore
	hub      *realtime.Hub
}

// NewNotificationHandler constructs the handler. hub may be nil, in which case
// the stream endpoint reports 503.
func NewNotificationHandler(service NotificationStore, settings SettingsStore, hub *realtime.Hub) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("notification handler: service is required")
	}
	if settings == nil {
		return nil, errors.New("notification handler: settings service is required")
	}
	return &NotificationHandler{service: service, settings: settings, hub: hub}, nil
}

// GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	input := services.ListNotificationsInput{
		UserID:     userID,
		Page:       parseIntQuery(c, "page", 1),
		Limit:      parseIntQuery(c, "limit", 0),
		UnreadOnly: parseBoolQuery(c, "unread_only"),
		Types:      splitCSV(c.Query("types")),
	}

	if len(input.Types) == 0 {
		muted, err := h.settings.MutedTypes(ctx, userID)
		if err != nil {
			response.Error(c, err)
			return
		}
		input.ExcludeTypes = muted
	}

	page, err := h.service.List(ctx, input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, page, response.NewMeta(page.Page, page.Limit, page.Total))
}

// PUT /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	dto, err := h.service.MarkRead(requestContext(c), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// DELETE /api/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(requestContext(c), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// DELETE /api/notifications/clear/all
func (h *NotificationHandler) ClearAll(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	removed, err := h.service.ClearAll(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": removed})
}

// GET /api/notifications/stats
func (h *NotificationHandler) Stats(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// GET /api/notifications/settings
func (h *NotificationHandler) GetSettings(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	settings, err := h.settings.Get(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, settings)
}

// PUT /api/notifications/settings
func (h *NotificationHandler) UpdateSettings(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	var payload services.UpdateNotificationSettingsInput
	if !bindAndValidate(c, &payload) {
		return
	}

	settings, err := h.settings.Update(requestContext(c), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, settings)
}

// GET /api/notifications/stream
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, appErrors.New("STREAM_UNAVAILABLE", "Realtime stream is not enabled", http.StatusServiceUnavailable))
		return
	}

	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	allowed := make(map[string]struct{}, len(realtime.DefaultStreams))
	for _, stream := range realtime.DefaultStreams {
		allowed[stream] = struct{}{}
	}
	h.hub.Serve(userID, splitCSV(c.Query("streams")), allowed, c.Writer, c.Request)
}
