// Package registry owns the running mirrors: one Engine and one notification
// subscription per WatchSpec.
package registry

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/dirmirror/pkg/errors"
	"github.com/sidkik/dirmirror/pkg/fswatch"
	"github.com/sidkik/dirmirror/pkg/mirror"
)

// A Subscription delivers the notifications for a single watch root.
type Subscription interface {
	Notifications() <-chan mirror.Notification
	Close() error
}

// Source subscribes to all changes beneath `root`, recursively.
type Source func(root string, ignore mirror.IgnoreSet) (Subscription, error)

// FSNotifySource is the Source backed by the OS file notification API.
func FSNotifySource(root string, ignore mirror.IgnoreSet) (Subscription, error) {
	w, err := fswatch.Watch(root, ignore)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Mirror is an Engine paired with the subscription that feeds it.
type Mirror struct {
	Engine       *mirror.Engine
	Subscription Subscription
}

// Registry tracks the active mirrors.
type Registry struct {
	mirrors []Mirror
	group   *errgroup.Group
	log     logrus.FieldLogger
}

type options struct {
	source Source
	log    logrus.FieldLogger
}

// Option configures Start.
type Option func(*options)

// WithSource overrides where notifications come from.
func WithSource(source Source) Option {
	return func(opts *options) {
		opts.source = source
	}
}

// WithLogger overrides the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(opts *options) {
		opts.log = log
	}
}

// Start bootstraps and subscribes every spec, then starts delivering
// notifications to each spec's Engine in its own goroutine. The goroutines
// exit when ctx is cancelled or their subscription is closed.
//
// A spec whose bootstrap fails is still watched, so that later changes are
// mirrored. A spec that can't be subscribed to is skipped. Neither prevents
// the other specs from starting. Start only fails if no spec could be
// subscribed.
func Start(ctx context.Context, specs []mirror.WatchSpec, ignore mirror.IgnoreSet,
	opts ...Option) (*Registry, error) {

	options := options{
		source: FSNotifySource,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	group, ctx := errgroup.WithContext(ctx)
	r := &Registry{group: group, log: options.log}
	for _, spec := range specs {
		specLog := options.log.WithFields(logrus.Fields{
			"watch":  spec.WatchRoot,
			"target": spec.TargetRoot,
		})

		engine := mirror.NewEngine(spec, ignore, options.log)
		if err := engine.Bootstrap(); err != nil {
			specLog.WithError(err).Error(
				"Initial copy failed. The target may be incomplete.")
		}

		sub, err := options.source(spec.WatchRoot, ignore)
		if err != nil {
			specLog.WithError(err).Error("Failed to watch for changes. Skipping.")
			continue
		}

		specLog.Infof("Copying any file changes in %s to %s", spec.WatchRoot, spec.TargetRoot)
		m := Mirror{Engine: engine, Subscription: sub}
		r.mirrors = append(r.mirrors, m)
		r.group.Go(func() error {
			listen(ctx, m, specLog)
			return nil
		})
	}

	if len(specs) > 0 && len(r.mirrors) == 0 {
		return nil, errors.New("no directories could be watched")
	}
	return r, nil
}

// listen feeds every notification to the engine, one at a time, until the
// subscription is closed or ctx is cancelled. A notification that's already
// being handled is always finished.
func listen(ctx context.Context, m Mirror, log logrus.FieldLogger) {
	notifications := m.Subscription.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if err := m.Engine.Handle(n); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"path": n.Path,
					"kind": n.Kind,
				}).Warn("Failed to mirror change")
			}
		}
	}
}

// Mirrors returns the active mirrors.
func (r *Registry) Mirrors() []Mirror {
	return r.mirrors
}

// Stop closes every subscription. Notifications that are already being
// handled are allowed to finish.
func (r *Registry) Stop() {
	for _, m := range r.mirrors {
		if err := m.Subscription.Close(); err != nil {
			r.log.WithError(err).WithField("watch", m.Engine.Spec().WatchRoot).Warn(
				"Failed to stop watching")
		}
	}
}

// Wait blocks until every listener has exited.
func (r *Registry) Wait() error {
	return r.group.Wait()
}
