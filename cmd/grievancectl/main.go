package main

import (
	"os"

	"github.com/aldoetobex/civic-grievance-backend/cmd/grievancectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
