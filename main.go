package main

import "github.com/downpour-dl/downpour/cmd"

func main() {
	cmd.Execute()
}
