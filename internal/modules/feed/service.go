package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/config"
	"github.com/tidemark-app/tidemark/internal/domain"
)

// ViewerLoader resolves the viewer-private settings that drive filtering.
type ViewerLoader interface {
	GetPrivateUser(ctx context.Context, userID string) (*domain.PrivateUser, error)
}

// Service hands out fetch controllers, one per (user, feed key) pair, backed
// by the process-lifetime session store. Controllers are created lazily and
// reused so cursors and caches survive presentation-layer remounts.
type Service struct {
	events   domain.EventStore
	docs     domain.DocumentStore
	viewers  ViewerLoader
	sessions *SessionStore
	cfg      config.FeedConfig
	log      zerolog.Logger

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewService creates the feed service.
func NewService(
	events domain.EventStore,
	docs domain.DocumentStore,
	viewers ViewerLoader,
	cfg config.FeedConfig,
	log zerolog.Logger,
) *Service {
	return &Service{
		events:      events,
		docs:        docs,
		viewers:     viewers,
		sessions:    NewSessionStore(),
		cfg:         cfg,
		log:         log.With().Str("service", "feed").Logger(),
		controllers: make(map[string]*Controller),
	}
}

// LivePushInterval returns the configured websocket push poll interval.
func (s *Service) LivePushInterval() time.Duration {
	return s.cfg.LivePushInterval
}

// Controller returns the fetch controller for the pair, creating it on first
// use. The viewer's block lists are loaded once per controller; a missing
// private-user record degrades to no blocking rather than an error.
func (s *Service) Controller(ctx context.Context, userID, feedKey string) *Controller {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "\x00" + feedKey
	if controller, ok := s.controllers[key]; ok {
		return controller
	}

	viewer, err := s.viewers.GetPrivateUser(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load private user, feed will not apply block lists")
		viewer = nil
	}

	controller := NewController(
		userID, feedKey, viewer,
		s.events, s.docs,
		s.sessions.Get(userID, feedKey),
		s.cfg, s.log,
	)
	s.controllers[key] = controller
	return controller
}
