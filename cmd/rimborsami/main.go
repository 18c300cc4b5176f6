// Rimborsami - Find the refunds you are owed.
// Copyright (c) 2025 rimborsami
// Licensed under the Apache License 2.0

package main

import "os"

// Version information (set at build time)
var (
	Version   = "0.1.0"
	Commit    = "dev"
	BuildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
