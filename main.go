package main

import (
	"os"

	"btrsnap/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
