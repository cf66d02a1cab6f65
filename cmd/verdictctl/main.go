package main

import (
	"context"
	"os"

	"github.com/Harshitk-cp/verdict/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
