/*
Package conductor talks to the Holochain conductor's admin and app interfaces.

Client is a JSON request/response client over one websocket. Each request
carries a uuid correlation id; a single reader goroutine routes responses back
to the waiting caller. Every call is bounded by the client's call timeout and a
timeout surfaces as ErrTimeout. Calls are never retried here.

Conductor is the typed facade used by the rest of the gateway. It decodes each
response into a concrete type at this boundary, and maps conductor error kinds
onto sentinel errors:

	errors.Is(err, conductor.ErrDuplicateCell)    // clone already exists
	errors.Is(err, conductor.ErrAlreadyInstalled) // app id or cell already installed
	errors.Is(err, conductor.ErrTimeout)          // no answer within the call timeout
	errors.Is(err, conductor.ErrNotConnected)     // dial failed or connection dropped
*/
package conductor
