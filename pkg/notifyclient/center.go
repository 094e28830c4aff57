package notifyclient

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often Run refetches the full list.
const DefaultPollInterval = 30 * time.Second

// ErrUnknownNotification is returned when an action names an id that is not
// in the current view.
var ErrUnknownNotification = errors.New("notifyclient: notification not in view")

// View is an immutable copy of the center's state.
type View struct {
	Notifications []Notification
	UnreadCount   int64
	Loaded        bool
	// FetchError is the last refresh failure, cleared by the next success.
	FetchError error
}

// Center is the client-side notification view model. It refetches on an
// interval, merges live events, and applies user actions optimistically with
// rollback when the server rejects them. A full refetch is authoritative and
// replaces any unsettled optimistic state.
type Center struct {
	api          API
	listOptions  ListOptions
	pollInterval time.Duration
	log          *zap.Logger
	now          func() time.Time

	mu        sync.Mutex
	state     viewState
	epoch     uint64
	loaded    bool
	fetchErr  error
	errs      []error
	listeners []func(View)

	pending sync.WaitGroup
}

// CenterOption customises a Center.
type CenterOption func(*Center)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) CenterOption {
	return func(c *Center) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithListOptions sets the filter used for every refresh.
func WithListOptions(opts ListOptions) CenterOption {
	return func(c *Center) {
		c.listOptions = opts
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) CenterOption {
	return func(c *Center) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock replaces time.Now for read timestamps.
func WithClock(now func() time.Time) CenterOption {
	return func(c *Center) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCenter builds a notification center over api.
func NewCenter(api API, opts ...CenterOption) (*Center, error) {
	if api == nil {
		return nil, errors.New("notifyclient: api is required")
	}
	c := &Center{
		api:          api,
		pollInterval: DefaultPollInterval,
		log:          zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OnChange registers fn to receive the view after every change.
func (c *Center) OnChange(fn func(View)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// View returns a copy of the current state.
func (c *Center) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Center) viewLocked() View {
	return View{
		Notifications: slices.Clone(c.state.items),
		UnreadCount:   c.state.unread,
		Loaded:        c.loaded,
		FetchError:    c.fetchErr,
	}
}

// Errors returns action failures not yet dismissed, oldest first.
func (c *Center) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.errs)
}

// DismissErrors clears the surfaced action failures.
func (c *Center) DismissErrors() {
	c.mu.Lock()
	c.errs = nil
	c.mu.Unlock()
}

// Refresh replaces the view with the server's list and unread count.
func (c *Center) Refresh(ctx context.Context) error {
	page, err := c.api.List(ctx, c.listOptions)

	c.mu.Lock()
	if err != nil {
		c.fetchErr = err
		c.mu.Unlock()
		c.log.Warn("notification refresh failed", zap.Error(err))
		c.publish()
		return err
	}
	c.epoch++
	c.state.items = slices.Clone(page.Notifications)
	c.state.unread = page.UnreadCount
	c.loaded = true
	c.fetchErr = nil
	c.mu.Unlock()

	c.publish()
	return nil
}

// Run refreshes immediately and then on every poll interval, merging events
// as they arrive. events may be nil when no live channel is available. Run
// returns when ctx is done.
func (c *Center) Run(ctx context.Context, events <-chan Event) error {
	_ = c.Refresh(ctx)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = c.Refresh(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.ApplyLive(ev)
		}
	}
}

// ApplyLive merges a pushed event into the view without a refetch.
func (c *Center) ApplyLive(ev Event) {
	c.mu.Lock()
	changed := c.applyLiveLocked(ev)
	c.mu.Unlock()

	if changed {
		c.publish()
	}
}

func (c *Center) applyLiveLocked(ev Event) bool {
	v := &c.state
	switch ev.Name {
	case EventCreated:
		if ev.Notification == nil || v.indexOf(ev.Notification.ID) >= 0 {
			return false
		}
		v.items = slices.Insert(v.items, 0, *ev.Notification)
		if !ev.Notification.Read {
			v.unread++
		}
		return true

	case EventRead:
		idx := v.indexOf(ev.NotificationID)
		if idx < 0 || v.items[idx].Read {
			return false
		}
		now := c.now()
		v.items[idx].Read = true
		v.items[idx].ReadAt = &now
		v.decrementUnread()
		return true

	case EventReadAll:
		now := c.now()
		for i := range v.items {
			if !v.items[i].Read {
				v.items[i].Read = true
				v.items[i].ReadAt = &now
			}
		}
		v.unread = 0
		return true

	case EventDeleted:
		idx := v.indexOf(ev.NotificationID)
		if idx < 0 {
			return false
		}
		if !v.items[idx].Read {
			v.decrementUnread()
		}
		v.items = slices.Delete(v.items, idx, idx+1)
		return true

	case EventCleared:
		v.items = nil
		v.unread = 0
		return true

	default:
		c.log.Debug("ignoring live event", zap.String("event", ev.Name))
		return false
	}
}

// MarkRead marks one notification read locally, then on the server.
func (c *Center) MarkRead(ctx context.Context, id string) (MutationState, error) {
	return c.mutate(ctx, MutationMarkRead, id, func(ctx context.Context) error {
		return c.api.MarkRead(ctx, id)
	})
}

// MarkAllRead marks every notification read locally, then on the server.
func (c *Center) MarkAllRead(ctx context.Context) (MutationState, error) {
	return c.mutate(ctx, MutationMarkAllRead, "", c.api.MarkAllRead)
}

// Delete removes one notification locally, then on the server.
func (c *Center) Delete(ctx context.Context, id string) (MutationState, error) {
	return c.mutate(ctx, MutationDelete, id, func(ctx context.Context) error {
		return c.api.Delete(ctx, id)
	})
}

// Open marks the notification read optimistically and calls navigate without
// waiting for the server. The server call runs in the background; use Wait to
// block until it settles.
func (c *Center) Open(ctx context.Context, id string, navigate func(Notification)) error {
	c.mu.Lock()
	idx := c.state.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return ErrUnknownNotification
	}
	target := c.state.items[idx]
	var m *mutation
	if !target.Read {
		m = newMutation(MutationMarkRead, id, c.epoch)
		m.apply(&c.state, c.now())
		target = c.state.items[idx]
	}
	c.mu.Unlock()

	if m != nil {
		c.publish()
		callCtx := context.WithoutCancel(ctx)
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			c.settle(m, c.api.MarkRead(callCtx, id))
		}()
	}

	if navigate != nil {
		navigate(target)
	}
	return nil
}

// Wait blocks until background calls started by Open have settled.
func (c *Center) Wait() {
	c.pending.Wait()
}

func (c *Center) mutate(ctx context.Context, kind MutationKind, id string, call func(context.Context) error) (MutationState, error) {
	c.mu.Lock()
	if id != "" && c.state.indexOf(id) < 0 {
		c.mu.Unlock()
		return MutationApplied, ErrUnknownNotification
	}
	m := newMutation(kind, id, c.epoch)
	m.apply(&c.state, c.now())
	c.mu.Unlock()
	c.publish()

	err := call(ctx)
	return c.settle(m, err), err
}

func (c *Center) settle(m *mutation, err error) MutationState {
	c.mu.Lock()
	state := m.settle(&c.state, err, c.epoch)
	if err != nil {
		c.errs = append(c.errs, err)
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("notification action failed",
			zap.String("action", string(m.kind)),
			zap.String("notification_id", m.id),
			zap.Stringer("outcome", state),
			zap.Error(err),
		)
		c.publish()
	}
	return state
}

func (c *Center) publish() {
	c.mu.Lock()
	view := c.viewLocked()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
}
