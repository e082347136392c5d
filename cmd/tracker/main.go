package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("tracker failed")
		os.Exit(1)
	}
}
