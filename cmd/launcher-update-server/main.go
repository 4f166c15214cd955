package main

import "github.com/oshokin/launcher-updater/cmd/launcher-update-server/cmd"

func main() {
	cmd.Execute()
}
