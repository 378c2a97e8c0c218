package main

import (
	"os"

	"github.com/shopboost/shopboost/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
