package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arvidsson/gitsync/git"
	"github.com/arvidsson/gitsync/store"
)

var fetchAllDir string

var fetchAllCmd = &cobra.Command{
	Use:   "fetch-all <uri>",
	Short: "Fetch and apply every ref the remote advertises, skipping refs already up to date",
	Args:  exactArgs(1, "gitsync fetch-all <uri>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := destinationStore(fetchAllDir)
		if err != nil {
			return err
		}

		repo, err := newRepository(args[0], s)
		if err != nil {
			return err
		}

		result, err := repo.FetchAll(cmd.Context(), git.FetchOptions{Notify: printShallowNotice})
		if err != nil {
			return fmt.Errorf("fetching all refs: %w", err)
		}

		fmt.Printf("fetched %d ref(s), wrote %d object(s)\n", len(result.Refs), result.ObjectsWritten)
		return nil
	},
}

func init() {
	fetchAllCmd.Flags().StringVar(&fetchAllDir, "dir", "", "Local directory to store objects/refs in (defaults to an in-memory store)")
}

// destinationStore returns a DiskStore rooted at dir, or an InMemoryStore
// if dir is empty.
func destinationStore(dir string) (store.Store, error) {
	if dir == "" {
		return store.NewInMemoryStore(), nil
	}
	s, err := store.NewDiskStore(dir)
	if err != nil {
		return nil, fmt.Errorf("preparing destination %s: %w", dir, err)
	}
	return s, nil
}
