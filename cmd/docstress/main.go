package main

import (
	"os"

	"docstress/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
