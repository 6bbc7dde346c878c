package main

import (
	"os"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
