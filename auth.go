package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/alipan-go/internal/provider"
	"github.com/tonimelisma/alipan-go/internal/session"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the account's refresh token",
		Long: `Store the long-lived refresh token issued to the configured OAuth
application. The token is read from --token or, if absent, from the first
line of standard input. It is exchanged once to check that it works and to
look up the account's drives.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("token", "", "refresh token (read from stdin when omitted)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session and drive ids",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newDrivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drives",
		Short: "Show the account's backup and resource drives",
		Args:  cobra.NoArgs,
		RunE:  runDrives,
	}
}

// readToken returns the first non-empty line of r.
func readToken(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if tok := strings.TrimSpace(sc.Text()); tok != "" {
			return tok, nil
		}
	}

	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}

	return "", errors.New("no refresh token given")
}

func runLogin(cmd *cobra.Command, _ []string) error {
	token, err := cmd.Flags().GetString("token")
	if err != nil {
		return err
	}

	if token == "" {
		if stdoutIsTerminal() {
			statusf("Paste the refresh token and press Enter: ")
		}

		if token, err = readToken(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		// The new token may belong to another account.
		if err := a.session.Logout(ctx, provider.DriveKeys()...); err != nil {
			return err
		}

		if err := a.session.Login(ctx, token); err != nil {
			return err
		}

		drives, err := a.provider.ResolveDrives(ctx)
		if err != nil {
			// Leave no half-working session behind.
			if clearErr := a.session.Logout(ctx, provider.DriveKeys()...); clearErr != nil {
				a.logger.Warn("clearing rejected session", slog.String("error", clearErr.Error()))
			}

			return fmt.Errorf("login failed: %w", err)
		}

		a.logger.Info("login successful",
			slog.String("backup_drive_id", drives.Backup),
			slog.String("resource_drive_id", drives.Resource),
		)
		statusf("Login successful.\n")

		return nil
	})
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		if err := a.session.Logout(ctx, provider.DriveKeys()...); err != nil {
			return err
		}

		a.provider.Reset()
		statusf("Logged out.\n")

		return nil
	})
}

// drivesOutput is the JSON schema for `drives --json`.
type drivesOutput struct {
	LoggedIn    bool            `json:"logged_in"`
	TokenExpiry *time.Time      `json:"token_expiry,omitempty"`
	Roots       []provider.Root `json:"roots"`
}

func runDrives(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		out, err := collectDrives(ctx, a)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), out)
		}

		rows := make([][]string, 0, len(out.Roots))
		for _, r := range out.Roots {
			rows = append(rows, []string{r.RootID, r.Title, r.DocumentID})
		}

		printTable(cmd.OutOrStdout(), []string{"ROOT", "TITLE", "DRIVE ID"}, rows, stdoutIsTerminal())

		if out.TokenExpiry != nil {
			statusf("Access token expires %s.\n", formatTime(*out.TokenExpiry))
		}

		return nil
	})
}

func collectDrives(ctx context.Context, a *app) (drivesOutput, error) {
	st, err := a.session.Status(ctx)
	if err != nil {
		return drivesOutput{}, err
	}

	if !st.LoggedIn {
		return drivesOutput{}, session.ErrNotAuthenticated
	}

	if _, err := a.provider.ResolveDrives(ctx); err != nil {
		return drivesOutput{}, err
	}

	listing, err := a.provider.ListRoots(ctx)
	if err != nil {
		return drivesOutput{}, err
	}

	// ResolveDrives may have refreshed the token.
	if st, err = a.session.Status(ctx); err != nil {
		return drivesOutput{}, err
	}

	out := drivesOutput{LoggedIn: st.LoggedIn, Roots: listing.Roots}
	if !st.Expiry.IsZero() {
		out.TokenExpiry = &st.Expiry
	}

	return out, nil
}

// notLoggedInHint adds the login hint to authentication failures before
// they reach the user.
func notLoggedInHint(err error) error {
	if errors.Is(err, session.ErrNotAuthenticated) {
		return fmt.Errorf("%w: run 'alipan-go login' first", err)
	}

	return err
}
