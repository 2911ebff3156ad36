package main

import (
	"os"

	"github.com/shamanic-technologies/reply-qualification-service/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
