package main

import (
	"os"

	"github.com/joho/godotenv"

	docquerycmder "github.com/papercomputeco/docquery/cmd/docquery"
)

func main() {
	// A missing .env is fine; anything set there only fills unset variables.
	_ = godotenv.Load()

	cmd := docquerycmder.NewDocqueryCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
