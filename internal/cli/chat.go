package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hobbymatch/hobbymatch/internal/session"
)

func newChatCmd(e *env) *cobra.Command {
	var roomID, name string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a specific room by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(e)
			if err != nil {
				return err
			}
			defer a.Close()
			a.ConnectPush(ctx)

			if name == "" {
				name, err = a.Session.CurrentUser(ctx)
				if err != nil {
					return err
				}
			}
			if name == "" {
				return fmt.Errorf("no display name: pass --name or log in first")
			}
			if roomID == "" {
				return fmt.Errorf("--room is required")
			}

			return chatScreen(ctx, a, roomID, name)
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "room identifier")
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the logged-in user)")
	return cmd
}

func newResumeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Continue your last active chat",
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

			roomID, ok, err := a.Session.Resume(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("No active chat to resume.")
				return nil
			}

			return chatScreen(ctx, a, roomID, userID)
		},
	}
}
