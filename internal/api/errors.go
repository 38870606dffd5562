package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for logical backend responses. These are distinct from
// transport failures: the backend understood the request and refused it.
var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAlreadyInChat is returned to a match request while a chat is active.
	ErrAlreadyInChat = errors.New("already in an active chat")
	// ErrAlreadyWaiting is returned to a match request already in the pool.
	ErrAlreadyWaiting = errors.New("already waiting for a match")
)

// The backend responds in Turkish; logical errors are recognized by the
// exact detail strings it sends.
const (
	detailAlreadyActive  = "Zaten aktif bir sohbettesiniz."
	detailAlreadyWaiting = "Zaten eşleşme bekliyorsunuz."
)

// Error is a non-2xx backend response.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Detail)
}

// mapLogical folds known backend refusals into sentinel errors so callers
// can branch with errors.Is. Unknown refusals pass through as *Error.
func mapLogical(apiErr *Error) error {
	switch {
	case apiErr.Status == 401:
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Detail)
	case apiErr.Detail == detailAlreadyActive:
		return fmt.Errorf("%w: %s", ErrAlreadyInChat, apiErr.Detail)
	case apiErr.Detail == detailAlreadyWaiting:
		return fmt.Errorf("%w: %s", ErrAlreadyWaiting, apiErr.Detail)
	default:
		return apiErr
	}
}
