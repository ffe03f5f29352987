// Package cli implements the gitsync command-line surface: ls, clone,
// fetch-all, fetch-one, and push, following the shape of nanogit's cli/cmd
// package (one cobra command per operation, persistent auth/output flags on
// the root command) but wired to gitsync's own Repository/transport/store
// types instead of the nanogit client.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arvidsson/gitsync/protocol"
)

// Exit codes per the external-interfaces contract: 0 success, 1 a remote
// reported failure (rejected ref, remote error, server unavailable), 2 a
// local or transport failure (I/O, malformed frame, store error), 3 a
// usage error (a wrong argument count or a flag cobra could not parse).
const (
	exitOK             = 0
	exitRemoteFailure  = 1
	exitLocalFailure   = 2
	exitUsageError     = 3
)

var (
	token    string
	username string
	password string
	progress bool
	jsonOut  bool
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:   "gitsync",
	Short: "A Git Smart-protocol synchronization client",
	Long: `gitsync speaks the Git Smart wire protocol (v1) directly: ref
advertisement, want/have negotiation, packfile transfer, and push with
report-status, without shelling out to git.

Authentication can be provided via flags or environment variables:
  - GITSYNC_TOKEN:    bearer token, sent as an Authorization header
  - GITSYNC_USERNAME / GITSYNC_PASSWORD: HTTP basic auth`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Authentication token")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Username for basic auth")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Password for basic auth")
	rootCmd.PersistentFlags().BoolVar(&progress, "progress", false, "Force progress output even when stderr isn't a terminal")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Accepted but has no effect: every command prints human-readable text")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	rootCmd.AddCommand(lsCmd, cloneCmd, fetchAllCmd, fetchOneCmd, pushCmd)
}

// Execute runs the root command and returns the process exit code,
// classifying any returned error per the remote/local/usage taxonomy.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	fmt.Fprintln(os.Stderr, "gitsync:", err)
	return classifyExitCode(err)
}

// usageError marks an argument-count or flag-validation failure, so
// classifyExitCode can tell it apart from a failure that happened while
// actually talking to the remote.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// exactArgs returns a cobra positional-args validator that reports a
// usageError (rather than cobra's own plain error) on arity mismatch, so
// Execute can map it to exit code 3.
func exactArgs(n int, use string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &usageError{msg: fmt.Sprintf("usage: %s", use)}
		}
		return nil
	}
}

// minArgs is exactArgs' counterpart for commands that accept a variable
// number of trailing arguments (push's ref list).
func minArgs(n int, use string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return &usageError{msg: fmt.Sprintf("usage: %s", use)}
		}
		return nil
	}
}

// classifyExitCode maps a command error to the external-interfaces exit
// code: a usage error for a rejected argument list, a remote failure for a
// wire-level remote error/rejection/unavailability, and a local failure for
// everything else (I/O, malformed data, store errors).
func classifyExitCode(err error) int {
	var usage *usageError
	if errors.As(err, &usage) {
		return exitUsageError
	}

	var remoteErr *protocol.RemoteError
	var rejected *protocol.CommandRejectedError
	var unavailable *protocol.ServerUnavailableError
	switch {
	case errors.As(err, &remoteErr):
		return exitRemoteFailure
	case errors.As(err, &rejected):
		return exitRemoteFailure
	case errors.As(err, &unavailable), errors.Is(err, protocol.ErrServerUnavailable):
		return exitRemoteFailure
	default:
		return exitLocalFailure
	}
}

func outputFormat() string {
	if jsonOut {
		return "json"
	}
	return "human"
}
