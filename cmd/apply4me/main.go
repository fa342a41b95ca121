package main

import "github.com/BhekumusaEric/apply4me-sub001/cmd"

func main() {
	cmd.Execute()
}
