package main

import (
	"os"

	"github.com/chemview-archive/harvester/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
