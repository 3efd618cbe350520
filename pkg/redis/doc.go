// Package redis connects to the shared Redis instance backing the tenant
// cache. It wraps go-redis with startup retry, env-driven configuration and
// a health-check probe.
package redis
