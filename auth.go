package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/filevault-go/internal/api"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <username-or-email>",
		Short: "Sign in and save the session",
		Long: `Sign in with a username or email address. The password is taken from
--password or, when that is not given, read from the first line of stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: runLogin,
	}

	cmd.Flags().String("password", "", "account password (read from stdin when omitted)")

	return cmd
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE:  runRegister,
	}

	cmd.Flags().String("username", "", "username for the new account")
	cmd.Flags().String("email", "", "email address for the new account")
	cmd.Flags().String("password", "", "account password (read from stdin when omitted)")

	cobra.CheckErr(cmd.MarkFlagRequired("username"))
	cobra.CheckErr(cmd.MarkFlagRequired("email"))

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove saved credentials",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Validate the saved session and show the signed-in user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

// readPassword returns the --password flag or the first line of stdin.
func readPassword(cmd *cobra.Command, stdin io.Reader) (string, error) {
	password, err := cmd.Flags().GetString("password")
	if err != nil {
		return "", err
	}

	if password != "" {
		return password, nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}

	password = strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required: pass --password or pipe it on stdin")
	}

	return password, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	password, err := readPassword(cmd, cc.Stdin)
	if err != nil {
		return err
	}

	cc.Logger.Info("login started", slog.String("identifier", args[0]))

	res := cc.Session.Login(cmd.Context(), args[0], password)
	if !res.Success {
		return authFailure(res.Message, res.Err)
	}

	cc.Logger.Info("login successful", slog.String("username", res.User.Username))

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, newUserOutput(res.User))
	}

	cc.Statusf("Signed in as %s.\n", res.User.Username)

	return nil
}

func runRegister(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	password, err := readPassword(cmd, cc.Stdin)
	if err != nil {
		return err
	}

	username, err := cmd.Flags().GetString("username")
	if err != nil {
		return err
	}

	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return err
	}

	res := cc.Session.Register(cmd.Context(), api.Registration{
		Username: username,
		Email:    email,
		Password: password,
	})
	if !res.Success {
		return authFailure(res.Message, res.Err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, newUserOutput(res.User))
	}

	cc.Statusf("Account created. Signed in as %s.\n", res.User.Username)

	return nil
}

// authFailureError carries the display message of a failed sign-in while
// keeping the classified cause available to errors.Is and errors.As.
type authFailureError struct {
	message string
	cause   error
}

func (e *authFailureError) Error() string { return e.message }

func (e *authFailureError) Unwrap() error { return e.cause }

func authFailure(message string, cause error) error {
	return &authFailureError{message: message, cause: cause}
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := cc.Session.Logout(cmd.Context()); err != nil {
		return err
	}

	cc.Logger.Info("logout complete")
	cc.Statusf("Signed out.\n")

	return nil
}

// userOutput is the JSON schema for `whoami --json` and `login --json`.
type userOutput struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func newUserOutput(u *api.User) userOutput {
	return userOutput{ID: u.ID, Username: u.Username, Email: u.Email}
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	snap := cc.Session.Initialize(cmd.Context())
	if !snap.IsAuthenticated() {
		return errNotLoggedIn
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, newUserOutput(snap.User))
	}

	fmt.Fprintf(cc.Stdout, "User:  %s (%s)\n", snap.User.Username, snap.User.Email)
	fmt.Fprintf(cc.Stdout, "ID:    %s\n", snap.User.ID)

	return nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
