package main

import (
	"github.com/axellelanca/locashare/cmd"
	_ "github.com/axellelanca/locashare/cmd/cli"
	_ "github.com/axellelanca/locashare/cmd/server"
)

func main() {
	cmd.Execute()
}
