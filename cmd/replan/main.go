package main

import (
	"os"

	"github.com/hupe1980/replanmesh/internal/cli"
)

// version is set via ldflags: -X main.version=v1.0.0
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
