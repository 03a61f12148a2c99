package main

import (
	"os"

	"github.com/hashguard/hashguard/cmd/hashguard/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
