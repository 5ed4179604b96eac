package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-metro/internal/svgmap"
)

// ErrSessionNotFound is returned for unknown or expired map sessions.
var ErrSessionNotFound = errors.New("map session not found")

// MapConfig configures map sessions.
type MapConfig struct {
	Source      string        // map asset URL or path
	MaxSessions int           // LRU capacity
	TTL         time.Duration // idle session lifetime, 0 keeps sessions until evicted
}

// MapSession is one page view's map controller.
type MapSession struct {
	ID      string
	Created time.Time
	Map     *svgmap.Map

	mu      sync.Mutex
	station string
}

// Station returns the station the session restores on reload.
func (m *MapSession) Station() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.station
}

func (m *MapSession) setStation(name string) {
	m.mu.Lock()
	m.station = name
	m.mu.Unlock()
}

// invalidator is implemented by fetchers that cache assets.
type invalidator interface {
	Invalidate(source string)
}

// MapService owns the map sessions driven by station pages.
type MapService struct {
	cfg      MapConfig
	fetcher  svgmap.Fetcher
	names    svgmap.NameSet
	bus      *EventBus
	logger   *zap.SugaredLogger
	sessions gcache.Cache
}

// NewMapService creates a map service. names decides which map labels are
// indexed as stations.
func NewMapService(cfg MapConfig, fetcher svgmap.Fetcher, names svgmap.NameSet, bus *EventBus, logger *zap.SugaredLogger) *MapService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if bus == nil {
		bus = NewEventBus()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 256
	}

	s := &MapService{
		cfg:     cfg,
		fetcher: fetcher,
		names:   names,
		bus:     bus,
		logger:  logger,
	}
	b := gcache.New(cfg.MaxSessions).
		LRU().
		EvictedFunc(func(key, _ interface{}) {
			id, _ := key.(string)
			s.bus.Publish(Event{Session: id, Action: ActionClosed})
		})
	if cfg.TTL > 0 {
		b = b.Expiration(cfg.TTL)
	}
	s.sessions = b.Build()
	return s
}

// Bus returns the session event bus.
func (s *MapService) Bus() *EventBus {
	return s.bus
}

// Source returns the configured map asset.
func (s *MapService) Source() string {
	return s.cfg.Source
}

// Open creates a session, loads the map and highlights stationName when it
// is non-empty. A map that fails to load still yields a session; its
// container shows the error placeholder with a retry action.
func (s *MapService) Open(ctx context.Context, stationName string) (*MapSession, error) {
	id := uuid.New().String()
	ctrl := svgmap.New(svgmap.Config{
		Fetcher: s.fetcher,
		Names:   s.names,
		Logger:  s.logger.With("session", id),
		Retry:   fmt.Sprintf("@post('%s')", SessionPath(id, "reload")),
	})
	sess := &MapSession{
		ID:      id,
		Created: time.Now(),
		Map:     svgmap.NewMap(ctrl, s.cfg.Source),
		station: stationName,
	}

	if sess.Map.InitializeSVGMap(ctx) && stationName != "" {
		if !sess.Map.HighlightStationOnMap(stationName) {
			s.logger.Warnw("station missing from map", "session", id, "station", stationName)
		}
	}

	if err := s.sessions.Set(id, sess); err != nil {
		return nil, fmt.Errorf("store map session: %w", err)
	}
	s.bus.Publish(Event{Session: id, Action: ActionOpened, Station: stationName})
	return sess, nil
}

// Get returns a live session.
func (s *MapService) Get(id string) (*MapSession, error) {
	v, err := s.sessions.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return v.(*MapSession), nil
}

// Close discards a session.
func (s *MapService) Close(id string) bool {
	return s.sessions.Remove(id)
}

// Len returns the number of live sessions.
func (s *MapService) Len() int {
	return s.sessions.Len(true)
}

// Reload refetches the map asset for a session and restores its highlight.
func (s *MapService) Reload(ctx context.Context, id string) (*MapSession, bool, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, false, err
	}
	if inv, ok := s.fetcher.(invalidator); ok {
		inv.Invalidate(s.cfg.Source)
	}
	loaded := sess.Map.InitializeSVGMap(ctx)
	if name := sess.Station(); loaded && name != "" {
		sess.Map.HighlightStationOnMap(name)
	}
	s.Notify(sess, ActionReloaded)
	return sess, loaded, nil
}

// Highlight highlights name on a session's map and remembers it for reloads.
func (s *MapService) Highlight(id, name string) (bool, error) {
	sess, err := s.Get(id)
	if err != nil {
		return false, err
	}
	if !sess.Map.HighlightStationOnMap(name) {
		return false, nil
	}
	sess.setStation(name)
	s.Notify(sess, ActionHighlighted)
	return true, nil
}

// Clear removes a session's highlight.
func (s *MapService) Clear(id string) (*MapSession, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	sess.Map.ClearHighlight()
	sess.setStation("")
	s.Notify(sess, ActionCleared)
	return sess, nil
}

// Reset restores a session's full-map view, dropping its highlight.
func (s *MapService) Reset(id string) (*MapSession, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	sess.Map.ResetView()
	sess.setStation("")
	s.Notify(sess, ActionTransformed)
	return sess, nil
}

// Notify publishes a session event for action.
func (s *MapService) Notify(sess *MapSession, action string) {
	s.bus.Publish(Event{Session: sess.ID, Action: action, Station: sess.Map.Highlighted()})
}

// SessionPath returns the map control endpoint path for a session action.
// An empty action addresses the session itself.
func SessionPath(id, action string) string {
	if action == "" {
		return "/api/v1/map/" + id
	}
	return fmt.Sprintf("/api/v1/map/%s/%s", id, action)
}
