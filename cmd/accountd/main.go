package main

import (
	"fmt"
	"os"
)

func main() {
	app := CLI()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "accountd: %v\n", err)
		os.Exit(1)
	}
}
