package main

import (
	"os"

	"harvest-agent/core/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
