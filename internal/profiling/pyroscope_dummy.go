//go:build !pyroscope

package profiling

import "gopkg.in/op/go-logging.v1"

// Start does nothing; build with the pyroscope tag to enable profiling.
func Start(log *logging.Logger, role string) error {
	log.Debugf("Pyroscope is disabled (%s)", role)
	return nil
}
