package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hobbymatch/hobbymatch/internal/api"
	"github.com/hobbymatch/hobbymatch/internal/match"
	"github.com/hobbymatch/hobbymatch/internal/session"
)

func newMatchCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Search for a chat partner by common hobbies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(e)
			if err != nil {
				return err
			}
			defer a.Close()
			a.ConnectPush(ctx)

			userID, err := a.Session.CurrentUser(ctx)
			if err != nil {
				return err
			}
			if userID == "" {
				return session.ErrNotLoggedIn
			}

			m := a.NewMatcher(userID)
			if err := m.Start(ctx); err != nil {
				if errors.Is(err, api.ErrAlreadyInChat) {
					return fmt.Errorf("you already have an active chat; run `hobbymatch resume`")
				}
				if errors.Is(err, api.ErrAlreadyWaiting) {
					return fmt.Errorf("a match search is already waiting for this account; let it finish or cancel it first")
				}
				return err
			}

			if m.Phase() == match.Searching {
				fmt.Println("Searching for a partner... press Ctrl+C to cancel.")
			}

			select {
			case <-ctx.Done():
				// Best-effort backend cancel; the signal context is already gone.
				cancelCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				m.Cancel(cancelCtx)
				fmt.Println("\nSearch cancelled.")
				return nil
			case result, ok := <-m.Done():
				if !ok {
					if err := m.Err(); err != nil {
						return err
					}
					return nil
				}
				if result.CommonHobbies > 0 {
					fmt.Printf("Matched! You share %d hobbies. Room: %s\n", result.CommonHobbies, result.RoomID)
				} else {
					fmt.Printf("Matched! Room: %s\n", result.RoomID)
				}
				return chatScreen(ctx, a, result.RoomID, userID)
			}
		},
	}
}
