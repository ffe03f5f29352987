package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/arvidsson/gitsync/protocol/sideband"
)

// progressSink returns a sideband.ProgressSink that writes to stderr when
// either --progress was passed explicitly or stderr is attached to a
// terminal, and nil otherwise (Fetch/Push treat a nil sink as "discard").
func progressSink() sideband.ProgressSink {
	if !progress && !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return func(text string) {
		fmt.Fprint(os.Stderr, text)
	}
}
