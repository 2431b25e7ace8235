// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/fieldthebern/groundgame/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
