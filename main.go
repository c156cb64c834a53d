package main

import "github.com/kozaktomas/faceguard/cmd"

func main() {
	cmd.Execute()
}
