package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/custodia/escrowd/escrowservice"
)

func main() {
	// Optional build-target flag override (local | cloud-dev | cloud)
	buildTarget := flag.String("build-target", "", "Override ESCROW_BUILD_TARGET (local, cloud-dev, cloud)")
	flag.Parse()
	if *buildTarget != "" {
		if err := os.Setenv("ESCROW_BUILD_TARGET", *buildTarget); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply build-target override")
		}
	}

	if err := escrowservice.Run(); err != nil {
		log.Fatal().Err(err).Msg("escrow service exited with error")
	}
}
