package main

import (
	"errors"
	"fmt"
	"os"

	"geo-ingest/internal/app"
	"geo-ingest/internal/logging"
)

// main runs the ingest command and maps failures to exit code 1.
func main() {
	runner := app.NewAppRunner()

	err := runner.Run(os.Args[1:])
	if err != nil {
		if errors.Is(err, app.ErrUsage) || errors.Is(err, app.ErrConfigNotFound) || errors.Is(err, app.ErrMissingArgs) {
			fmt.Fprintln(os.Stderr, "")
			runner.Usage(os.Stderr)
		}

		// Failures must be visible even with -loglevel=none.
		if logging.GetLevel() < logging.Error {
			logging.SetLevel(logging.Error)
		}
		logging.Logf(logging.Error, "Ingest failed: %v", err)
		os.Exit(1)
	}

	logging.Logf(logging.Info, "Ingest completed successfully.")
}
