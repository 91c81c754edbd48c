package main

import (
	"os"

	"github.com/utrading/utrading-alert-hub/cmd/alertctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
