package main

import (
	"fmt"
	"os"

	"modwarden/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "modwarden:", err)
		os.Exit(1)
	}
}
