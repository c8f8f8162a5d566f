// Package main is the entry point for the loop engine command line
package main

import (
	"os"

	"github.com/mrcode/loop-engine/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
