// Package worker runs the platform's background loops: provisioning,
// deletion sweep, webhook retry and usage scan. A Poller calls its task on
// a fixed cadence until the context is cancelled, finishing the in-flight
// run before exiting so a shutdown never abandons half-processed work.
//
//	p := worker.NewPoller("usage-scan", time.Hour, scanner.Run, worker.WithLogger(log))
//	g.Go(func() error { return p.Run(ctx) })
//
// Tasks resume from durable state on restart; the poller carries no state
// of its own. ExponentialBackoff spaces out retries of failed work items.
package worker
