package main

import "github.com/abmgate/abmgate/cmd"

func main() {
	cmd.Execute()
}
