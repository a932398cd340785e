package main

import (
	"os"

	"github.com/babelcloud/framerelay/cmd"
	"github.com/babelcloud/framerelay/internal/util"
)

func main() {
	util.SetupGlobalLogger()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
