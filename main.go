package main

import "github.com/derickschaefer/atlas/cmd"

func main() {
	cmd.Execute()
}
