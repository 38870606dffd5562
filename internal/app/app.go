// Package app wires the client's layers together: local state, REST client,
// push channel, and the session controller.
package app

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hobbymatch/hobbymatch/internal/api"
	"github.com/hobbymatch/hobbymatch/internal/chat"
	"github.com/hobbymatch/hobbymatch/internal/config"
	"github.com/hobbymatch/hobbymatch/internal/match"
	"github.com/hobbymatch/hobbymatch/internal/push"
	"github.com/hobbymatch/hobbymatch/internal/session"
	"github.com/hobbymatch/hobbymatch/internal/state"
)

// App holds the wired client components.
type App struct {
	Cfg     config.Config
	Log     *zerolog.Logger
	Clock   clockwork.Clock
	API     *api.Client
	Push    *push.Manager
	State   *state.Store
	Session *session.Controller

	detachReconnect func()
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := state.Open(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}
	logger.Debug().Str("state_path", cfg.StatePath).Msg("local state opened")

	clock := clockwork.NewRealClock()
	apiClient := api.New(cfg.APIBaseURL, cfg.RequestTimeout, logger)
	pushManager := push.New(cfg.SocketURL, push.Options{
		Attempts: cfg.ReconnectAttempts,
		Delay:    cfg.ReconnectDelay,
		DelayMax: cfg.ReconnectDelayMax,
	}, clock, logger)

	return &App{
		Cfg:     cfg,
		Log:     logger,
		Clock:   clock,
		API:     apiClient,
		Push:    pushManager,
		State:   st,
		Session: session.New(apiClient, pushManager, st, logger),
	}, nil
}

// ConnectPush brings the push channel up and attaches the session's
// reconnect hook. A dead channel is not fatal: every flow has a polling
// fallback, so the error is surfaced as a status and the app carries on.
func (a *App) ConnectPush(ctx context.Context) {
	a.detachReconnect = a.Session.AttachReconnect(ctx)
	if err := a.Push.Connect(ctx); err != nil {
		a.Log.Warn().Err(err).Msg("push channel unavailable, running on polling only")
	}
}

// NewRoom builds a room controller bound to this app's collaborators.
func (a *App) NewRoom(roomID, username string) *chat.Room {
	return chat.NewRoom(roomID, username, chat.RoomDeps{
		API:          a.API,
		Push:         a.Push,
		Store:        a.State,
		Clock:        a.Clock,
		Log:          a.Log,
		PollInterval: a.Cfg.PollInterval,
	})
}

// NewMatcher builds a matchmaking session for the given user.
func (a *App) NewMatcher(userID string) *match.Matcher {
	return match.New(userID, match.Config{
		RetryInitial:  a.Cfg.MatchRetryInitial,
		Retry:         a.Cfg.MatchRetry,
		ProbeInterval: a.Cfg.ActiveProbeInterval,
	}, match.Deps{
		API:   a.API,
		Push:  a.Push,
		Store: a.State,
		Clock: a.Clock,
		Log:   a.Log,
	})
}

// Close releases the push connection and the local state store.
func (a *App) Close() {
	if a.detachReconnect != nil {
		a.detachReconnect()
	}
	a.Push.Close()
	if err := a.State.Close(); err != nil {
		a.Log.Warn().Err(err).Msg("failed to close local state")
	}
}
