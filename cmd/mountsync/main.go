package main

import (
	"os"

	"github.com/nimburion/mountsync/pkg/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewRootCommand(cli.Options{Name: "mountsync"})))
}
