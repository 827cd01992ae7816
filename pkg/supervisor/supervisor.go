// Package supervisor drives the mirrors for the lifetime of the process.
package supervisor

import (
	"context"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dirmirror/pkg/config"
	"github.com/sidkik/dirmirror/pkg/errors"
	"github.com/sidkik/dirmirror/pkg/registry"
)

// Mocked out for unit testing.
var clock = clockwork.NewRealClock()

// Run starts mirroring every directory in `cfg` and blocks until `ctx` is
// cancelled. It then stops every subscription and waits for the in-flight
// notifications to finish before returning.
func Run(ctx context.Context, cfg config.Config, opts ...registry.Option) error {
	r, err := registry.Start(ctx, cfg.WatchSpecs(), cfg.IgnoreSet(), opts...)
	if err != nil {
		return errors.WithContext(err, "start")
	}

	interval := cfg.PollInterval()
	for {
		select {
		case <-ctx.Done():
			log.Info("Quitting..")
			r.Stop()
			if err := r.Wait(); err != nil {
				return errors.WithContext(err, "stop")
			}
			return nil
		case <-clock.After(interval):
			log.WithField("mirrors", len(r.Mirrors())).Debug("Still watching")
		}
	}
}
