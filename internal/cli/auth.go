package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hobbymatch/hobbymatch/internal/api"
)

func newLoginCmd(e *env) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and cache your identity locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(e)
			if err != nil {
				return err
			}
			defer a.Close()
			a.ConnectPush(ctx)

			in := bufio.NewReader(os.Stdin)
			if email == "" {
				email = prompt(in, "email: ")
			}
			if password == "" {
				password = prompt(in, "password: ")
			}

			res, err := a.Session.Login(ctx, email, password)
			if errors.Is(err, api.ErrInvalidCredentials) {
				return fmt.Errorf("email or password is wrong")
			}
			if err != nil {
				return err
			}

			fmt.Printf("Logged in as %s (%d hobbies on file)\n", res.UserID, len(res.Hobbies))

			if roomID, ok, err := a.Session.Resume(ctx); err == nil && ok {
				fmt.Printf("You have an active chat in room %s; run `hobbymatch resume` to continue.\n", roomID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newRegisterCmd(e *env) *cobra.Command {
	var email, password, hobbiesFlag string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account (email verification round-trip)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(e)
			if err != nil {
				return err
			}
			defer a.Close()
			a.ConnectPush(ctx)

			in := bufio.NewReader(os.Stdin)
			if email == "" {
				email = prompt(in, "email: ")
			}
			if password == "" {
				password = prompt(in, "password: ")
			}
			hobbies := splitHobbies(hobbiesFlag)
			if len(hobbies) == 0 {
				hobbies = splitHobbies(prompt(in, "hobbies (comma separated): "))
			}

			if err := a.Session.ValidateRegistration(email, password, hobbies); err != nil {
				return err
			}

			if err := a.Session.BeginRegistration(ctx, email); err != nil {
				return fmt.Errorf("send verification code: %w", err)
			}
			fmt.Println("A verification code was sent to your email.")
			code := prompt(in, "code: ")

			res, err := a.Session.CompleteRegistration(ctx, email, password, code, hobbies)
			if err != nil {
				return err
			}

			fmt.Printf("Registered and logged in as %s\n", res.UserID)

			if roomID, ok, err := a.Session.Resume(ctx); err == nil && ok {
				fmt.Printf("You have an active chat in room %s; run `hobbymatch resume` to continue.\n", roomID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&hobbiesFlag, "hobbies", "", "comma separated hobby list")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear all locally stored session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(e)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Session.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func prompt(in *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

func splitHobbies(raw string) []string {
	var out []string
	for _, h := range strings.Split(raw, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
