package main

import (
	"craftdeck/internal/cli/cmd"
)

func main() {
	cmd.Execute()
}
