package main

import (
	"os"

	"github.com/domage/github-trend-analyzer/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
