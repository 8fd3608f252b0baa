package main

import (
	"fmt"
	"os"

	"github.com/moasq/datalink/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		if !commands.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
