package main

import (
	"github.com/relabs-tech/inertial_mouse/internal/app"
	"github.com/relabs-tech/inertial_mouse/internal/cli"
)

func main() {
	cli.Execute(cli.NewCommand("console",
		"print telemetry frames published on the MQTT broker",
		app.RunConsole))
}
