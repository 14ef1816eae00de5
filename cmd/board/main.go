package main

import (
	"os"

	"github.com/idilsaglam/board/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args))
}
