// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"keystone/aicore/orchestrator"
)

func main() {
	if err := orchestrator.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "aicore: %v\n", err)
		os.Exit(1)
	}
}
