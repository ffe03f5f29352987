package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arvidsson/gitsync/git"
	"github.com/arvidsson/gitsync/protocol/hash"
)

var cloneCmd = &cobra.Command{
	Use:   "clone <uri> [<dir>]",
	Short: "Clone every advertised ref into a local directory (or an in-memory store, if no directory is given)",
	Args:  minArgs(1, "gitsync clone <uri> [<dir>]"),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 2 {
			return &usageError{msg: "usage: gitsync clone <uri> [<dir>]"}
		}

		dir := ""
		if len(args) == 2 {
			dir = args[1]
		}
		s, err := destinationStore(dir)
		if err != nil {
			return err
		}

		repo, err := newRepository(args[0], s)
		if err != nil {
			return err
		}

		result, err := repo.Clone(cmd.Context(), git.FetchOptions{Notify: printShallowNotice})
		if err != nil {
			return fmt.Errorf("cloning: %w", err)
		}

		fmt.Printf("cloned %d ref(s), wrote %d object(s)\n", len(result.Refs), result.ObjectsWritten)
		return nil
	},
}

func printShallowNotice(shallow, unshallow []hash.Hash) {
	for _, h := range shallow {
		fmt.Printf("shallow %s\n", h)
	}
	for _, h := range unshallow {
		fmt.Printf("unshallow %s\n", h)
	}
}
