package main

import "github.com/bryanchriswhite/rotatingbox/cmd/rotatingbox/commands"

func main() {
	commands.Execute()
}
