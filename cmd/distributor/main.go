package main

import (
	"fmt"
	"os"

	"github.com/congo-pay/token-distributor/cmd/distributor/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
