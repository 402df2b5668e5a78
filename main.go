package main

import "github.com/buildd-tools/default-release/cmd"

var version = "develop"

func main() {
	cmd.Execute(version)
}
