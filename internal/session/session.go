// Package session owns the top-level client session: identity, the
// register/login flows, the user notification channel subscription, and the
// "continue chat" resumption check.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hobbymatch/hobbymatch/internal/api"
	"github.com/hobbymatch/hobbymatch/internal/proto"
	"github.com/hobbymatch/hobbymatch/internal/push"
	"github.com/hobbymatch/hobbymatch/internal/state"
)

var (
	// ErrInvalidEmail is returned when the address doesn't look like one.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidPassword is returned when the password is too short.
	ErrInvalidPassword = errors.New("password must be at least 6 characters")
	// ErrNoHobbies is returned when registration carries no hobbies to match on.
	ErrNoHobbies = errors.New("at least one hobby is required")
	// ErrNotLoggedIn is returned for operations that need an identity.
	ErrNotLoggedIn = errors.New("not logged in")
)

const maxHobbies = 10

// Controller wires identity state to the backend and the push channel.
type Controller struct {
	api   *api.Client
	push  *push.Manager
	store *state.Store
	log   *zerolog.Logger
}

// New builds a session controller.
func New(apiClient *api.Client, pushManager *push.Manager, store *state.Store, logger *zerolog.Logger) *Controller {
	return &Controller{api: apiClient, push: pushManager, store: store, log: logger}
}

// CurrentUser returns the locally stored identity, or "" when logged out.
func (c *Controller) CurrentUser(ctx context.Context) (string, error) {
	return c.store.UserID(ctx)
}

// Login authenticates, persists identity and the hobby cache, and subscribes
// the push connection to the per-user notification channel.
func (c *Controller) Login(ctx context.Context, email, password string) (api.LoginResult, error) {
	email = strings.TrimSpace(email)

	res, err := c.api.Login(ctx, email, password)
	if err != nil {
		return api.LoginResult{}, err
	}

	if err := c.store.SetUserID(ctx, res.UserID); err != nil {
		return api.LoginResult{}, fmt.Errorf("persist identity: %w", err)
	}
	if err := c.store.SetHobbies(ctx, res.Hobbies); err != nil {
		c.log.Warn().Err(err).Msg("cache hobbies")
	}

	c.joinUserChannel(res.UserID)
	c.log.Info().Str("user", res.UserID).Msg("logged in")
	return res, nil
}

// ValidateRegistration applies the client-side checks the registration form
// performs before any backend call.
func (c *Controller) ValidateRegistration(email, password string, hobbies []string) error {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || !strings.Contains(email[at:], ".") {
		return ErrInvalidEmail
	}
	if len(password) < 6 {
		return ErrInvalidPassword
	}
	if len(hobbies) == 0 {
		return ErrNoHobbies
	}
	if len(hobbies) > maxHobbies {
		return fmt.Errorf("at most %d hobbies are allowed", maxHobbies)
	}
	return nil
}

// BeginRegistration asks the backend to mail a verification code.
func (c *Controller) BeginRegistration(ctx context.Context, email string) error {
	return c.api.SendVerification(ctx, strings.TrimSpace(email))
}

// CompleteRegistration verifies the mailed code, registers the account, and
// logs straight in.
func (c *Controller) CompleteRegistration(ctx context.Context, email, password, code string, hobbies []string) (api.LoginResult, error) {
	email = strings.TrimSpace(email)

	if err := c.api.VerifyCode(ctx, email, strings.TrimSpace(code)); err != nil {
		return api.LoginResult{}, fmt.Errorf("verify code: %w", err)
	}
	if err := c.api.Register(ctx, email, password, hobbies); err != nil {
		return api.LoginResult{}, fmt.Errorf("register: %w", err)
	}
	return c.Login(ctx, email, password)
}

// Logout clears every local slot together.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.log.Info().Msg("logged out")
	return nil
}

// Resume cross-checks the persisted room pointer against the backend. The
// pointer is a hint, never a source of truth: the backend's active-chat
// probe decides, the backend's get-room answer wins over whatever is stored
// (a pointer can go stale across devices), and the reconciled room id is
// written to the slot before it is reported, so navigation never runs ahead
// of the durable state. When the backend is unreachable the
// stale-but-present pointer is offered as a best effort, mirroring degraded
// operation elsewhere.
func (c *Controller) Resume(ctx context.Context) (roomID string, ok bool, err error) {
	userID, err := c.store.UserID(ctx)
	if err != nil {
		return "", false, err
	}
	if userID == "" {
		return "", false, ErrNotLoggedIn
	}

	stored, err := c.store.LastRoomID(ctx)
	if err != nil {
		return "", false, err
	}

	active, err := c.api.CheckActive(ctx, userID)
	if err != nil {
		c.log.Warn().Err(err).Msg("active-chat check unreachable, falling back to pointer")
		return stored, stored != "", nil
	}
	if !active {
		return "", false, nil
	}

	current, err := c.api.GetRoom(ctx, userID)
	if err != nil {
		if stored != "" {
			c.log.Warn().Err(err).Msg("get-room unreachable, falling back to pointer")
			return stored, true, nil
		}
		return "", false, fmt.Errorf("fetch active room: %w", err)
	}
	if current == "" {
		return "", false, nil
	}

	if current != stored {
		if err := c.store.SetLastRoomID(ctx, current); err != nil {
			return "", false, fmt.Errorf("persist room pointer: %w", err)
		}
	}
	return current, true, nil
}

// AttachReconnect registers the connect handler that restores the per-user
// channel subscription after every (re)connect. Returns the detach function.
func (c *Controller) AttachReconnect(ctx context.Context) func() {
	return c.push.On(proto.EventConnect, func(json.RawMessage) {
		userID, err := c.store.UserID(ctx)
		if err != nil || userID == "" {
			return
		}
		c.joinUserChannel(userID)
	})
}

func (c *Controller) joinUserChannel(userID string) {
	if err := c.push.Emit(proto.EventJoinUserRoom, proto.JoinUserRoomData{UserID: userID}); err != nil {
		c.log.Warn().Err(err).Str("user", userID).Msg("join_user_room emission failed")
	}
}
