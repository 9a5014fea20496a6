// Package main is the single-binary entrypoint for EdgeOrchestra: the
// server and its operator CLI in one executable.
package main

import "github.com/edgeorchestra/edgeorchestra/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
