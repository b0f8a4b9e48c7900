package main

import "github.com/DrSkyle/wastewatch/cmd/wastewatch/commands"

func main() {
	commands.Execute()
}
