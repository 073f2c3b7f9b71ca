package main

import (
	"os"

	"github.com/adchub/adchub/cmd/adchubd/cmd"
)

func main() {
	if err := cmd.Root.Execute(); err != nil {
		os.Exit(1)
	}
}
