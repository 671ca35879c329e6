package main

import "github.com/geomechanics/gompm/cmd"

func main() {
	cmd.Execute()
}
