// Command goblind runs the goblin MCP gateway daemon.
package main

// version can be set during build with -ldflags.
var version = "dev"

func main() {
	SetVersion(version)
	Execute()
}
