package main

import "github.com/oshokin/launcher-updater/cmd/launcher-publisher/cmd"

func main() {
	cmd.Execute()
}
