package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arvidsson/gitsync/git"
	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/store"
)

var pushDir string
var pushOptions []string

var pushCmd = &cobra.Command{
	Use:   "push <uri> <ref>...",
	Short: "Push one or more local refs to the remote, creating or moving them as needed",
	Args:  minArgs(2, "gitsync push <uri> <ref>..."),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := destinationStore(pushDir)
		if err != nil {
			return err
		}

		repo, err := newRepository(args[0], s)
		if err != nil {
			return err
		}

		// The remote's current ref positions (for each command's old hash)
		// come from a preliminary advertisement fetch; Push itself re-reads
		// the advertisement on its own connection before applying commands,
		// so a ref that moved between the two is simply reported rejected.
		adv, err := repo.Ls(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing remote refs before push: %w", err)
		}
		remoteHash := make(map[string]hash.Hash, len(adv.Refs))
		for _, ref := range adv.Refs {
			remoteHash[ref.Name] = ref.ObjectID
		}

		commands, err := buildPushCommands(cmd.Context(), s, args[1:], remoteHash)
		if err != nil {
			return err
		}

		result, err := repo.Push(cmd.Context(), func(haves []hash.Hash) []git.Command {
			return commands
		}, git.PushOptions{Values: pushOptions})
		if err != nil {
			return fmt.Errorf("pushing: %w", err)
		}

		return reportPushResult(result)
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushDir, "dir", "", "Local directory holding the objects/refs to push from (defaults to an in-memory store, which has nothing to push)")
	pushCmd.Flags().StringArrayVar(&pushOptions, "push-option", nil, "Push-option string to send (repeatable); ignored if the remote doesn't advertise push-options")
}

// buildPushCommands turns each requested ref name into a Command: the new
// hash is the local store's current value for that ref, the old hash is
// whatever the remote was last seen advertising for the same name (zero,
// if the remote doesn't have it yet).
func buildPushCommands(ctx context.Context, s store.Store, refNames []string, remoteHash map[string]hash.Hash) ([]git.Command, error) {
	commands := make([]git.Command, 0, len(refNames))
	for _, refName := range refNames {
		name, err := protocol.ParseRefName(refName)
		if err != nil {
			return nil, fmt.Errorf("parsing ref %q: %w", refName, err)
		}

		newHash, err := s.ReadRef(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("reading local ref %q: %w", refName, err)
		}

		commands = append(commands, git.Command{
			RefName: name.FullName,
			OldHash: remoteHash[name.FullName],
			NewHash: newHash,
		})
	}
	return commands, nil
}

func reportPushResult(result git.PushResult) error {
	if !result.UnpackOK {
		return fmt.Errorf("remote rejected the packfile: %s", result.UnpackError)
	}

	var firstRejected *git.RefPushResult
	for _, ref := range result.Refs {
		ref := ref
		if ref.OK {
			fmt.Printf("ok\t%s\n", ref.RefName)
			continue
		}
		fmt.Printf("rejected\t%s\t%s\n", ref.RefName, ref.Reason)
		if firstRejected == nil {
			firstRejected = &ref
		}
	}
	if firstRejected != nil {
		return protocol.NewCommandRejectedError(firstRejected.RefName, firstRejected.Reason)
	}
	return nil
}
