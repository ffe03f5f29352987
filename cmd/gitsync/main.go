package main

import (
	"os"

	"github.com/arvidsson/gitsync/cmd/gitsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
