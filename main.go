package main

import "slipway/cmd"

func main() {
	cmd.Execute()
}
