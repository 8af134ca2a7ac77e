// Package main provides the chorale CLI.
package main

import "github.com/chorale-ml/chorale/cmd/chorale/commands"

func main() {
	commands.Execute()
}
