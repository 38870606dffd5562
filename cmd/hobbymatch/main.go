package main

import (
	"fmt"
	"os"

	"github.com/hobbymatch/hobbymatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hobbymatch: %v\n", err)
		os.Exit(1)
	}
}
