// Package main provides pos, a terminal client for the POS backend.
//
// pos runs one command per invocation or, with "pos shell", keeps the
// session in memory across an interactive loop.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	app := App()
	err := app.Run(os.Args)
	if rt, ok := app.Metadata[runtimeKey].(*runtime); ok {
		if cerr := rt.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "error: closing session store: %v\n", cerr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
