// Package log centralizes cgmgr's logging convention: every component logs
// through containerd/log's context-scoped logger instead of calling logrus
// directly, matching the teacher daemon's own logging idiom
// (log.G(ctx).WithField(...)).
package log

import (
	"context"

	clog "github.com/containerd/log"
	"github.com/sirupsen/logrus"
)

// G returns the logger stored in ctx, or the package default logger if none
// was attached via WithLogger.
func G(ctx context.Context) *logrus.Entry {
	return clog.G(ctx)
}

// WithLogger attaches entry to ctx for downstream G(ctx) calls.
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return clog.WithLogger(ctx, entry)
}

// Module returns a logger pre-tagged with a "component" field (used by
// containerapi's Create rollback logging).
func Module(ctx context.Context, name string) *logrus.Entry {
	return G(ctx).WithField("component", name)
}
