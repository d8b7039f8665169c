package main

import "github.com/lsst-dm/legacy-ctrl-provenance/cmd"

func main() {
	cmd.Execute()
}
