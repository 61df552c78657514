//go:build pyroscope

package profiling

import (
	"errors"

	"github.com/caarlos0/env/v11"
	"github.com/grafana/pyroscope-go"
	"gopkg.in/op/go-logging.v1"
)

// Start initializes Pyroscope profiling for the given role.
func Start(log *logging.Logger, role string) error {
	log.Info("Starting Pyroscope")

	s, err := env.ParseAs[Settings]()
	if err != nil {
		return err
	}
	if s.ServerAddress == "" {
		return errors.New("PYROSCOPE_SERVER_ADDRESS is not set")
	}
	if s.ServiceTag == "" {
		s.ServiceTag = role
	}

	_, err = pyroscope.Start(pyroscope.Config{
		ApplicationName: s.AppName,
		ServerAddress:   s.ServerAddress,
		Logger:          pyroscope.StandardLogger,
		Tags: map[string]string{
			"service": s.ServiceTag,
		},
	})
	if err != nil {
		return err
	}
	log.Infof("Pyroscope started at %s, app name: %s, service tag: %s", s.ServerAddress, s.AppName, s.ServiceTag)
	return nil
}
