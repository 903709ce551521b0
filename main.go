package main

import "github.com/rotblauer/stravad/cmd"

func main() {
	cmd.Execute()
}
