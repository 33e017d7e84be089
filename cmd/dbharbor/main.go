package main

import (
	"os"

	"github.com/jadedragon942/dbharbor/cmd/dbharbor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
