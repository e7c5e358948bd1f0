// Command sitectl is the operator CLI for the obra-back API.
package main

import (
	"os"

	"github.com/iago/obra-back/cmd/sitectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
