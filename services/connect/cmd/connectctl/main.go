package main

import (
	"os"

	"github.com/ruet-connect/connect/services/connect/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
