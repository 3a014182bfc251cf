// The main package for the ingest executable.
package main

import (
	"github.com/newsblend/ingest/cmd"
)

func main() {
	cmd.Execute()
}
