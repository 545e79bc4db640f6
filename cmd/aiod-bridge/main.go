// Command aiod-bridge runs the one-way sync bridge that translates AI-asset
// records from a source search API into entities on a destination catalog.
package main

import (
	"log"
	"os"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/cmd/aiod-bridge/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
