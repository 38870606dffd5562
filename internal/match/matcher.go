// Package match drives the hobby-matchmaking flow. Four triggers can resolve
// one Searching session: the immediate request response, the timed
// re-request, the match_found push event, and the coarse active-chat probe.
// They race; resolve is the single idempotent entry point that lets exactly
// one of them win.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hobbymatch/hobbymatch/internal/api"
	"github.com/hobbymatch/hobbymatch/internal/proto"
	"github.com/hobbymatch/hobbymatch/internal/push"
	"github.com/hobbymatch/hobbymatch/internal/state"
)

// Phase is the matchmaking state.
type Phase int

const (
	Idle Phase = iota
	Searching
	Matched
	Cancelled
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Matched:
		return "matched"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrNotIdle is returned when Start is called on a spent Matcher.
var ErrNotIdle = errors.New("matcher already used")

// Match is a resolved pairing. CommonHobbies is zero when the match was
// discovered through the active-chat probe, which does not carry it.
type Match struct {
	RoomID        string
	CommonHobbies int
}

// Config tunes the search timers.
type Config struct {
	// RetryInitial is the delay before the first re-request after "waiting".
	RetryInitial time.Duration
	// Retry is the steady re-request interval after that.
	Retry time.Duration
	// ProbeInterval drives the independent check-active fallback.
	ProbeInterval time.Duration
}

// Matcher runs exactly one matchmaking session for one user.
type Matcher struct {
	userID string
	cfg    Config

	api   *api.Client
	push  *push.Manager
	store *state.Store
	clock clockwork.Clock
	log   *zerolog.Logger

	mu       sync.Mutex
	phase    Phase
	result   Match
	failure  error
	cancel   context.CancelFunc
	offMatch func()
	done     chan Match
}

// Deps bundles the collaborators a Matcher needs.
type Deps struct {
	API   *api.Client
	Push  *push.Manager
	Store *state.Store
	Clock clockwork.Clock
	Log   *zerolog.Logger
}

// New constructs an idle matcher for the given user.
func New(userID string, cfg Config, deps Deps) *Matcher {
	return &Matcher{
		userID: userID,
		cfg:    cfg,
		api:    deps.API,
		push:   deps.Push,
		store:  deps.Store,
		clock:  deps.Clock,
		log:    deps.Log,
		phase:  Idle,
		done:   make(chan Match, 1),
	}
}

// Phase returns the current phase.
func (m *Matcher) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Result returns the resolved match once Phase is Matched.
func (m *Matcher) Result() Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

// Err returns the failure once Phase is Failed.
func (m *Matcher) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

// Done delivers the match exactly once when the session resolves.
func (m *Matcher) Done() <-chan Match {
	return m.done
}

// Start enters Searching and issues the match request. An immediate
// "matched" resolves on the spot; "waiting" arms the re-request timer and
// the fallback probe. The match_found push subscription covers the whole
// session either way.
func (m *Matcher) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != Idle {
		m.mu.Unlock()
		return ErrNotIdle
	}
	m.phase = Searching
	searchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.offMatch = m.push.On(proto.EventMatchFound, m.handleMatchFound)
	m.mu.Unlock()

	m.log.Info().Str("user", m.userID).Msg("match search started")

	res, err := m.api.RequestMatch(ctx, m.userID)
	if err != nil {
		m.fail(fmt.Errorf("match request: %w", err))
		return err
	}

	switch res.Status {
	case api.MatchStatusMatched:
		m.resolve(searchCtx, res.RoomID, res.CommonHobbies)
	case api.MatchStatusWaiting:
		m.log.Info().Str("user", m.userID).Msg("no match yet, waiting in pool")
		go m.retryLoop(searchCtx)
		go m.probeLoop(searchCtx)
	default:
		m.fail(fmt.Errorf("match request: unexpected status %q", res.Status))
		return m.Err()
	}
	return nil
}

// Cancel withdraws a Searching session: no timer may fire afterwards. The
// backend cancel call is best-effort; a refusal only means the pool entry
// was already gone.
func (m *Matcher) Cancel(ctx context.Context) {
	if !m.transition(Cancelled) {
		return
	}
	m.log.Info().Str("user", m.userID).Msg("match search cancelled")

	if err := m.api.CancelMatch(ctx, m.userID); err != nil {
		m.log.Debug().Err(err).Msg("cancel call refused")
	}
}

// resolve is the single entry point into Matched, shared by all four
// triggers. It checks the phase under lock so racing resolutions collapse to
// one transition; the room pointer is persisted before the completion signal
// so a crash mid-transition cannot lose the match.
func (m *Matcher) resolve(ctx context.Context, roomID string, commonHobbies int) bool {
	m.mu.Lock()
	if m.phase != Searching {
		m.mu.Unlock()
		return false
	}

	if err := m.store.SetLastRoomID(context.WithoutCancel(ctx), roomID); err != nil {
		m.log.Warn().Err(err).Str("room", roomID).Msg("persist matched room pointer")
	}

	m.phase = Matched
	m.result = Match{RoomID: roomID, CommonHobbies: commonHobbies}
	cancel := m.cancel
	off := m.offMatch
	m.cancel, m.offMatch = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if off != nil {
		off()
	}

	m.log.Info().Str("room", roomID).Int("common_hobbies", commonHobbies).Msg("matched")
	m.done <- m.result
	return true
}

func (m *Matcher) fail(err error) {
	m.mu.Lock()
	if m.phase != Searching {
		m.mu.Unlock()
		return
	}
	m.phase = Failed
	m.failure = err
	cancel := m.cancel
	off := m.offMatch
	m.cancel, m.offMatch = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if off != nil {
		off()
	}
	close(m.done)
}

// transition moves Searching into a terminal phase, stopping timers and
// detaching the push handler at the transition itself.
func (m *Matcher) transition(to Phase) bool {
	m.mu.Lock()
	if m.phase != Searching {
		m.mu.Unlock()
		return false
	}
	m.phase = to
	cancel := m.cancel
	off := m.offMatch
	m.cancel, m.offMatch = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if off != nil {
		off()
	}
	close(m.done)
	return true
}

// handleMatchFound consumes the push notification. The user channel is
// shared, so notifications addressed to other users are ignored.
func (m *Matcher) handleMatchFound(data json.RawMessage) {
	var payload proto.MatchFoundData
	if err := json.Unmarshal(data, &payload); err != nil {
		m.log.Warn().Err(err).Msg("decode match_found")
		return
	}
	if payload.TargetUser != m.userID {
		m.log.Debug().Str("target", payload.TargetUser).Msg("match_found for someone else, ignoring")
		return
	}
	m.resolve(context.Background(), payload.RoomID, payload.CommonHobbies)
}

// retryLoop re-issues the match request while waiting: once after
// RetryInitial, then every Retry. Transport errors keep the loop alive; the
// machine never makes silent forward progress on failure.
func (m *Matcher) retryLoop(ctx context.Context) {
	delay := m.cfg.RetryInitial
	for {
		timer := m.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			stopAndDrain(timer)
			return
		case <-timer.Chan():
		}

		if m.Phase() != Searching {
			return
		}

		res, err := m.api.RequestMatch(ctx, m.userID)
		switch {
		case errors.Is(err, api.ErrAlreadyInChat):
			// The pool already paired us; the room id comes from the probe path.
			m.probeOnce(ctx)
		case err != nil:
			m.log.Debug().Err(err).Msg("match re-request failed, will retry")
		case res.Status == api.MatchStatusMatched:
			m.resolve(ctx, res.RoomID, res.CommonHobbies)
			return
		}

		delay = m.cfg.Retry
	}
}

// probeLoop covers the window where a match exists server-side but neither
// the response nor the push event reached this client.
func (m *Matcher) probeLoop(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.probeOnce(ctx)
		}
	}
}

func (m *Matcher) probeOnce(ctx context.Context) {
	if m.Phase() != Searching {
		return
	}

	active, err := m.api.CheckActive(ctx, m.userID)
	if err != nil {
		m.log.Debug().Err(err).Msg("active-chat probe failed")
		return
	}
	if !active {
		return
	}

	roomID, err := m.api.GetRoom(ctx, m.userID)
	if err != nil {
		m.log.Debug().Err(err).Msg("get-room after probe failed")
		return
	}
	if roomID == "" {
		return
	}

	m.log.Info().Str("room", roomID).Msg("active chat discovered via probe")
	m.resolve(ctx, roomID, 0)
}

func stopAndDrain(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
