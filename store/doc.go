// Package store archives finished conversation runs so their transcripts can
// be fetched by run id after the run has returned.
//
// InMemoryStore is the default. RedisStore keeps transcripts in Redis and is
// suited to multi-instance deployments; only the wiring layer decides which
// backend to instantiate.
package store
