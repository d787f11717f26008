package main

import (
	"os"

	"github.com/tlee933/rai/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
