package main

import (
	"os"

	"github.com/smazurov/camfeed/cmd"
)

func main() {
	if err := cmd.CreateRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
