// Package sink delivers finished fingerprint records to their consumers.
//
// A record can be rendered (WriterSink), stored with visit bookkeeping
// (StoreSink), cached in Redis (RedisSink), or all of these at once (Multi).
// Sinks never see a record before the aggregator has finalized it.
package sink
