package main

import (
	"os"

	"github.com/ariel-frischer/stagetrail/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
