package main

import (
	"os"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
