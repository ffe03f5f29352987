package cli

import (
	"fmt"

	"github.com/arvidsson/gitsync/cmd/gitsync/internal/transportfactory"
	"github.com/arvidsson/gitsync/git"
	"github.com/arvidsson/gitsync/store"
)

// newRepository builds the Repository a command drives: a transport
// chosen from uri per the CLI's auth flags/environment, and s as its
// local object/ref database.
func newRepository(uri string, s store.Store) (*git.Repository, error) {
	cfg := transportfactory.FromEnvironment()
	cfg.Merge(token, username, password)

	t, err := transportfactory.New(uri, cfg)
	if err != nil {
		return nil, err
	}

	opts := []git.Option{git.WithProgress(progressSink()), git.WithLogger(logger())}
	repo, err := git.NewRepository(t, s, opts...)
	if err != nil {
		return nil, fmt.Errorf("building repository: %w", err)
	}
	return repo, nil
}
