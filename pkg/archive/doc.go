// Package archive stores tenant export bundles in S3-compatible object
// storage. A bundle is the JSON snapshot of everything a tenant owns,
// written on cancellation and before hard deletion so the data stays
// retrievable for the whole retention period.
package archive
