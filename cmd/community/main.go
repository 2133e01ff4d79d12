package main

import (
	"os"

	Logger "github.com/Luismorlan/community/utils/log"
)

func main() {
	if err := Execute(); err != nil {
		Logger.Log.WithError(err).Error("community exited with error")
		os.Exit(1)
	}
}
