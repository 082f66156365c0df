package main

import (
	"github.com/quickdock/quickdock/internal/cli"
	"github.com/quickdock/quickdock/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
