package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/credential"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/domain"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Sign in to LearnFlow, sign out and inspect the stored session.`,
	}

	authCmd.AddCommand(newLoginCmd(opts))
	authCmd.AddCommand(newLogoutCmd(opts))
	authCmd.AddCommand(newStatusCmd(opts))

	return authCmd
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Login to LearnFlow",
		Long: `Authenticate with the LearnFlow API using username and password.

This command will prompt for credentials if not provided via flags.
The credential pair is stored for future commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			if username == "" {
				fmt.Fprint(out, "Username: ")
				line, err := in.ReadString('\n')
				if err != nil && err != io.EOF {
					return fmt.Errorf("failed to read username: %w", err)
				}
				username = strings.TrimSpace(line)
			}

			if password == "" {
				fmt.Fprint(out, "Password: ")
				var err error
				password, err = readPassword(cmd.InOrStdin(), in)
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				fmt.Fprintln(out)
			}

			if username == "" {
				return fmt.Errorf("username is required")
			}
			if password == "" {
				return fmt.Errorf("password is required")
			}

			return opts.run(cmd, func(ctx context.Context, app *App) error {
				app.Session.Hydrate(ctx)

				fmt.Fprintf(out, "Authenticating with %s...\n", app.Config.GetAPIBase())
				if err := app.Session.Login(ctx, username, password); err != nil {
					return fmt.Errorf("login failed: %w", err)
				}

				identity := app.Session.State().Identity
				fmt.Fprintf(out, "✓ Successfully authenticated as %s (%s)\n", identity.Username, roleLabel(identity.Role))
				return nil
			})
		},
	}

	loginCmd.Flags().StringP("username", "u", "", "Username")
	loginCmd.Flags().StringP("password", "p", "", "Password (not recommended, use interactive prompt)")

	return loginCmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout and remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				app.Session.Logout(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
				return nil
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  `Restore the stored session and display the signed-in user and credential expiry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				app.Session.Hydrate(ctx)
				if err := app.Session.WaitReady(ctx); err != nil {
					return err
				}

				return RenderStatus(cmd.OutOrStdout(), buildStatus(ctx, app, time.Now()), opts.outputFormat)
			})
		},
	}
}

// StatusView is the rendered form of the session.
type StatusView struct {
	Username      string `json:"username,omitempty" yaml:"username,omitempty"`
	Role          string `json:"role,omitempty" yaml:"role,omitempty"`
	APIBase       string `json:"api_base" yaml:"api_base"`
	Store         string `json:"store" yaml:"store"`
	Access        string `json:"access" yaml:"access"`
	Refresh       string `json:"refresh" yaml:"refresh"`
	UserID        int64  `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Authenticated bool   `json:"authenticated" yaml:"authenticated"`
}

func buildStatus(ctx context.Context, app *App, now time.Time) StatusView {
	state := app.Session.State()
	view := StatusView{
		Authenticated: state.Authenticated(),
		APIBase:       app.Config.GetAPIBase(),
		Store:         app.Config.GetStore(),
	}

	if state.Identity != nil {
		view.UserID = state.Identity.ID
		view.Username = state.Identity.Username
		view.Role = roleLabel(state.Identity.Role)
	}

	access, _ := app.Store.Get(ctx, credential.Access)
	refresh, _ := app.Store.Get(ctx, credential.Refresh)
	view.Access = credential.Inspect(access).Describe(now)
	view.Refresh = credential.Inspect(refresh).Describe(now)

	return view
}

func roleLabel(role domain.Role) string {
	if role == domain.RoleUnknown {
		return "unknown"
	}
	return string(role)
}

// readPassword reads without echo when src is a terminal, or a plain line
// from in otherwise.
func readPassword(src io.Reader, in *bufio.Reader) (string, error) {
	if f, ok := src.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
