package main

import (
	"fmt"
	"os"

	_ "time/tzdata"
)

func main() {
	if err := Execute(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "reminderd: %v\n", err)
		os.Exit(1)
	}
}
