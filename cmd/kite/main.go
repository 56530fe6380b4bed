package main

import (
	"os"

	"github.com/kitewallet/kite/pkg/kitecmd"
)

func main() {
	if err := kitecmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
