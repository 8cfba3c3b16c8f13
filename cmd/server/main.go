// LEGACORE control plane.
//
// The legacore binary serves the multi-tenant agent API and offers a few
// operator commands:
//   - serve:  run the HTTP API
//   - status: report provider credential validation
//   - agents: list the agent catalog
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("legacore failed")
		os.Exit(1)
	}
}
