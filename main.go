package main

import "github.com/clawcontrol/clawcontrol/cmd"

func main() {
	cmd.Execute()
}
