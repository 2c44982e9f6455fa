package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/conorfennell/studysync/internal/apperr"
)

const passwordEnv = "STUDYSYNC_PASSWORD"

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Sign in to the study service",
	Long: `Exchanges a username and password for a token and stores it locally.
The password is read from $STUDYSYNC_PASSWORD or prompted for.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	password, err := readPassword()
	if err != nil {
		return err
	}
	user, err := application.Login(cmd.Context(), args[0], password)
	if errors.Is(err, apperr.ErrInvalidCredentials) {
		return fmt.Errorf("login failed: wrong username or password")
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Printf("✓ Signed in as %s (user %d)\n", user.Username, user.ID)
	return nil
}

func readPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear cached content",
	Long:  `Removes the stored token and the cached content. Unsynced study events are kept.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if application.Session.UserID() <= 0 {
			fmt.Println("Already signed out.")
			return nil
		}
		pending := application.Monitor.State().Pending
		if err := application.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("failed to sign out: %w", err)
		}
		fmt.Println("✓ Signed out")
		if pending > 0 {
			fmt.Printf("%s unsynced events stay on this device until you sign in again.\n", humanize.Comma(int64(pending)))
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session, network and sync status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := application
		if id := a.Session.UserID(); id > 0 {
			fmt.Printf("Session:  signed in (user %d)\n", id)
		} else {
			fmt.Println("Session:  signed out")
		}

		st := a.Monitor.State()
		network := "offline"
		switch {
		case st.Online && st.Wifi:
			network = "online (wifi)"
		case st.Online:
			network = "online"
		}
		fmt.Printf("Network:  %s\n", network)
		fmt.Printf("Pending:  %s events\n", humanize.Comma(int64(st.Pending)))

		meta, err := a.DB.SyncMetadata(cmd.Context())
		if err != nil {
			return err
		}
		if meta.LastFullSync.IsZero() {
			fmt.Println("Content:  never refreshed")
		} else {
			fmt.Printf("Content:  refreshed %s\n", humanize.Time(meta.LastFullSync))
		}
		if info, err := os.Stat(a.Config.DB); err == nil {
			fmt.Printf("Cache:    %s (%s)\n", a.Config.DB, humanize.Bytes(uint64(info.Size())))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd)
}
