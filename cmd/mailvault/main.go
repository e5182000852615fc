package main

import (
	"os"

	"github.com/nhle/mailvault/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
