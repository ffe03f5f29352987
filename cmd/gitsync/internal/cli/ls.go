package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arvidsson/gitsync/store"
)

var lsCmd = &cobra.Command{
	Use:   "ls <uri>",
	Short: "List the refs a remote advertises, without fetching anything",
	Args:  exactArgs(1, "gitsync ls <uri>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := newRepository(args[0], store.NewInMemoryStore())
		if err != nil {
			return err
		}

		adv, err := repo.Ls(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing refs: %w", err)
		}

		for _, ref := range adv.Refs {
			fmt.Printf("%s\t%s\n", ref.ObjectID, ref.Name)
		}
		return nil
	},
}
