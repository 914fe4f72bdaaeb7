package main

import "github.com/livemea/mearec/cmd"

func main() {
	cmd.Execute()
}
