package main

import (
	"os"

	"github.com/devbush/vdraft/internal/adapters/cli"
)

func main() {
	os.Exit(cli.Execute())
}
