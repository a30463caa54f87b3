// Package main is the entry point for the shapeshyft server CLI.
package main

import (
	"os"

	"github.com/johnqh/shapeshyft-api/cmd/shapeshyft/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
