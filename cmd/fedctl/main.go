// Command fedctl is an administrative CLI for the federation trust-chain
// engine: it prints and inspects signed statements, resolves trust chains
// against a configured entity, and issues this entity's own statements,
// all without bringing up the HTTP server.
package main

import "github.com/SUNET/fedtrust/cmd/fedctl/cmd"

func main() {
	cmd.Execute()
}
