package main

import "github.com/oshokin/launcher-updater/cmd/launcher-updater/cmd"

func main() {
	cmd.Execute()
}
