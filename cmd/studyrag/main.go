// Command studyrag serves and explores retrieval-augmented study help over
// uploaded course material.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
