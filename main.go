package main

import (
	"os"

	"msgfetch/cmd"
	"msgfetch/internal"
)

func main() {
	err := cmd.Execute()
	_ = internal.GetLogger().Sync()
	os.Exit(cmd.ExitCode(err))
}
