package main

import (
	"sweep-bench/cmd"
	"sweep-bench/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logging.GetLogger().WithError(err).Fatal("Failed to execute command")
	}
}
