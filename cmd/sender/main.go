// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"github.com/relabs-tech/inertial_mouse/internal/app"
	"github.com/relabs-tech/inertial_mouse/internal/cli"
)

func main() {
	cli.Execute(cli.NewCommand("sender",
		"read the worn IMUs and buttons and stream telemetry frames",
		app.RunSender))
}
