package main

import (
	"os"

	"github.com/bianoble/pubsync/cmd/pubsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
