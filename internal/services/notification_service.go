package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/models"
	"github.com/charlesng35/careerhub/internal/notifications"
	"github.com/charlesng35/careerhub/internal/realtime"
	apperrors "github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/metrics"
)

const (
	defaultNotificationPageSize = 20
	maxNotificationPageSize     = 100
)

// Actor identifies who triggered a notification.
type Actor struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Target is the optional deep-link destination of a notification.
type Target struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Slug  string `json:"slug,omitempty"`
}

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Kind      string          `json:"kind,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	IsRead    bool            `json:"is_read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Actor     *Actor          `json:"actor,omitempty"`
	Target    *Target         `json:"target,omitempty"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Payload notifications.Payload
	Actor   *Actor
	Target  *Target
}

// ListNotificationsInput defines filters for querying user notifications.
// Types restricts results; ExcludeTypes applies only when Types is empty.
type ListNotificationsInput struct {
	UserID       string
	Page         int
	Limit        int
	UnreadOnly   bool
	Types        []string
	ExcludeTypes []string
}

// NotificationPage is one page of notifications plus the user's unread total.
type NotificationPage struct {
	Notifications []NotificationDTO `json:"notifications"`
	Total         int64             `json:"total"`
	Page          int               `json:"page"`
	Limit         int               `json:"limit"`
	TotalPages    int               `json:"total_pages"`
	UnreadCount   int64             `json:"unread_count"`
	HasMore       bool              `json:"has_more"`
}

// NotificationStats summarises a user's notifications.
type NotificationStats struct {
	Total    int64            `json:"total"`
	Unread   int64            `json:"unread"`
	ByType   map[string]int64 `json:"by_type"`
	LatestAt *time.Time       `json:"latest_at,omitempty"`
}

// NotificationEventPayload represents data sent to realtime consumers.
type NotificationEventPayload struct {
	Notification   *NotificationDTO `json:"notification,omitempty"`
	NotificationID string           `json:"notification_id,omitempty"`
	UnreadCount    *int64           `json:"unread_count,omitempty"`
}

// NotificationService persists and queries user in-app notifications and
// publishes changes on the realtime notifications stream.
type NotificationService struct {
	db           *gorm.DB
	hub          *realtime.Hub
	now          func() time.Time
	defaultLimit int
	maxLimit     int
}

// NotificationOption customises the NotificationService.
type NotificationOption func(*NotificationService)

// WithNotificationClock overrides the clock used for created_at and read_at.
func WithNotificationClock(now func() time.Time) NotificationOption {
	return func(s *NotificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPageSizes overrides the default and maximum list page size.
func WithPageSizes(defaultLimit, maxLimit int) NotificationOption {
	return func(s *NotificationService) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

// NewNotificationService constructs a NotificationService. hub may be nil.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub, opts ...NotificationOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	svc := &NotificationService{
		db:           db,
		hub:          hub,
		now:          time.Now,
		defaultLimit: defaultNotificationPageSize,
		maxLimit:     maxNotificationPageSize,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.defaultLimit > svc.maxLimit {
		svc.defaultLimit = svc.maxLimit
	}
	return svc, nil
}

// Create persists a new notification and broadcasts it to the user's live subscribers.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, errors.New("notification service: type is required")
	}

	notification := models.Notification{
		UserID:  userID,
		Type:    notificationType,
		Title:   strings.TrimSpace(input.Title),
		Message: strings.TrimSpace(input.Message),
	}
	notification.CreatedAt = s.now().UTC()

	if input.Payload != nil {
		data, err := notifications.Encode(input.Payload)
		if err != nil {
			return nil, fmt.Errorf("notification service: %w", err)
		}
		notification.Data = data
	}
	if input.Actor != nil {
		notification.ActorID = input.Actor.ID
		notification.ActorName = input.Actor.Name
		notification.ActorPicture = input.Actor.Picture
	}
	if input.Target != nil {
		notification.TargetType = input.Target.Type
		notification.TargetID = input.Target.ID
		notification.TargetTitle = input.Target.Title
		notification.TargetSlug = input.Target.Slug
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, apperrors.Storage(fmt.Errorf("notification service: create notification: %w", err))
	}
	metrics.NotificationsCreated.WithLabelValues(notificationType).Inc()

	dto := mapNotification(notification)
	s.broadcast(userID, realtime.EventNotificationCreated, &NotificationEventPayload{
		Notification: &dto,
	})
	return &dto, nil
}

// List returns one page of the user's notifications ordered by recency.
func (s *NotificationService) List(ctx context.Context, input ListNotificationsInput) (*NotificationPage, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	page := input.Page
	if page <= 0 {
		page = 1
	}

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if types := cleanList(input.Types); len(types) > 0 {
		query = query.Where("type IN ?", types)
	} else if excluded := cleanList(input.ExcludeTypes); len(excluded) > 0 {
		query = query.Where("type NOT IN ?", excluded)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, apperrors.Storage(fmt.Errorf("notification service: count notifications: %w", err))
	}

	var rows []models.Notification
	if err := query.Session(&gorm.Session{}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&rows).Error; err != nil {
		return nil, apperrors.Storage(fmt.Errorf("notification service: list notifications: %w", err))
	}

	unread, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &NotificationPage{
		Notifications: mapNotificationRows(rows),
		Total:         total,
		Page:          page,
		Limit:         limit,
		TotalPages:    totalPages,
		UnreadCount:   unread,
		HasMore:       page < totalPages,
	}, nil
}

// UnreadCount returns how many of the user's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, apperrors.Storage(fmt.Errorf("notification service: count unread: %w", err))
	}
	return count, nil
}

// MarkRead sets the notification read flag for a user. Marking an already read
// notification succeeds without changing read_at.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", notificationID, userID).
			Take(&notification).Error; err != nil {
			return err
		}
		if notification.IsRead {
			return nil
		}

		now := s.now().UTC()
		result := tx.Model(&models.Notification{}).
			Where("id = ? AND is_read = ?", notification.ID, false).
			Updates(map[string]any{"is_read": true, "read_at": now})
		if result.Error != nil {
			return result.Error
		}
		notification.IsRead = true
		notification.ReadAt = &now
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Storage(fmt.Errorf("notification service: mark read: %w", err))
	}

	dto := mapNotification(notification)
	s.broadcast(userID, realtime.EventNotificationRead, &NotificationEventPayload{
		Notification:   &dto,
		NotificationID: notification.ID,
	})
	return &dto, nil
}

// MarkAllRead marks all notifications for the user as read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": s.now().UTC()})
	if result.Error != nil {
		return 0, apperrors.Storage(fmt.Errorf("notification service: mark all read: %w", result.Error))
	}

	zero := int64(0)
	s.broadcast(userID, realtime.EventNotificationReadAll, &NotificationEventPayload{UnreadCount: &zero})
	return result.RowsAffected, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return apperrors.Storage(fmt.Errorf("notification service: delete notification: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.broadcast(userID, realtime.EventNotificationDeleted, &NotificationEventPayload{
		NotificationID: notificationID,
	})
	return nil
}

// ClearAll removes every notification owned by the user and returns how many went.
func (s *NotificationService) ClearAll(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, apperrors.Storage(fmt.Errorf("notification service: clear notifications: %w", result.Error))
	}

	zero := int64(0)
	s.broadcast(userID, realtime.EventNotificationCleared, &NotificationEventPayload{UnreadCount: &zero})
	return result.RowsAffected, nil
}

// Stats summarises the user's notifications by read state and type.
func (s *NotificationService) Stats(ctx context.Context, userID string) (*NotificationStats, error) {
	ctx = ensureContext(ctx)

	var rows []struct {
		Type   string
		IsRead bool
		Count  int64
	}
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Select("type, is_read, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("type, is_read").
		Scan(&rows).Error; err != nil {
		return nil, apperrors.Storage(fmt.Errorf("notification service: stats: %w", err))
	}

	stats := &NotificationStats{ByType: make(map[string]int64)}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByType[row.Type] += row.Count
		if !row.IsRead {
			stats.Unread += row.Count
		}
	}

	if stats.Total > 0 {
		var latest models.Notification
		if err := s.db.WithContext(ctx).
			Select("created_at").
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Take(&latest).Error; err != nil {
			return nil, apperrors.Storage(fmt.Errorf("notification service: latest: %w", err))
		}
		latestAt := latest.CreatedAt
		stats.LatestAt = &latestAt
	}
	return stats, nil
}

func (s *NotificationService) broadcast(userID, event string, payload *NotificationEventPayload) {
	if s.hub == nil {
		return
	}
	message := realtime.Message{
		Stream: realtime.StreamNotifications,
		Event:  event,
	}
	if payload != nil {
		message.Data = payload
	}
	s.hub.BroadcastToUser(realtime.StreamNotifications, userID, message)
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		IsRead:    row.IsRead,
		ReadAt:    row.ReadAt,
		CreatedAt: row.CreatedAt,
	}
	if len(row.Data) > 0 {
		dto.Data = json.RawMessage(row.Data)
		if payload, err := notifications.Decode(row.Data); err == nil && payload != nil {
			dto.Kind = string(payload.Kind())
		}
	}
	if row.ActorID != "" {
		dto.Actor = &Actor{ID: row.ActorID, Name: row.ActorName, Picture: row.ActorPicture}
	}
	if row.TargetType != "" || row.TargetID != "" {
		dto.Target = &Target{
			Type:  row.TargetType,
			ID:    row.TargetID,
			Title: row.TargetTitle,
			Slug:  row.TargetSlug,
		}
	}
	return dto
}
