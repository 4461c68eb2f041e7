/*
Package storage journals service logger checks and lifecycle events to a
local bbolt file.

The journal exists for operators: GET /apps/hosted/sl-check/history reads it,
and nothing in the gateway feeds it back into clone decisions. Losing the file
loses history only.

Each kind of record lives in its own bucket as JSON, keyed by a version 7
UUID so that a reverse cursor walk returns the newest records first. Events
reach the journal through an events.Broker subscription (BoltStore.Consume);
pass summaries are written by the HTTP handler after each check. Prune bounds
both buckets.
*/
package storage
