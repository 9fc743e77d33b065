package main

import "github.com/Techno-coder/pmu/cmd"

func main() {
	cmd.Execute()
}
