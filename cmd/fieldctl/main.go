// Fieldsense - Farm Telemetry Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsense

// Command fieldctl inspects and moves Fieldsense model bundles and prints
// the effective server configuration.
//
//	fieldctl models list
//	fieldctl models export --version 12 --file bundle.json
//	fieldctl models import --file bundle.json
//	fieldctl config print
//
// The model commands open the BadgerDB store directly, so the server must
// not be running against the same path.
package main

import (
	"os"

	"github.com/tomtom215/fieldsense/internal/config"
)

func main() {
	if err := newRootCmd(config.LoadWithKoanf).Execute(); err != nil {
		os.Exit(1)
	}
}
