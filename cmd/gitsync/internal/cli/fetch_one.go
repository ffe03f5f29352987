package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arvidsson/gitsync/git"
)

var fetchOneDir string

var fetchOneCmd = &cobra.Command{
	Use:   "fetch-one <uri> <ref>",
	Short: "Fetch and apply a single ref by name (e.g. refs/heads/main)",
	Args:  exactArgs(2, "gitsync fetch-one <uri> <ref>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := destinationStore(fetchOneDir)
		if err != nil {
			return err
		}

		repo, err := newRepository(args[0], s)
		if err != nil {
			return err
		}

		result, err := repo.FetchOne(cmd.Context(), args[1], git.FetchOptions{Notify: printShallowNotice})
		if err != nil {
			return fmt.Errorf("fetching %s: %w", args[1], err)
		}

		fmt.Printf("fetched %d ref(s), wrote %d object(s)\n", len(result.Refs), result.ObjectsWritten)
		return nil
	},
}

func init() {
	fetchOneCmd.Flags().StringVar(&fetchOneDir, "dir", "", "Local directory to store objects/refs in (defaults to an in-memory store)")
}
