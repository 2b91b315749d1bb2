// Package main provides the entry point for the admin CLI tool.
package main

import "github.com/turtacn/argproxy/cmd/cli"

func main() {
	cli.Execute()
}
