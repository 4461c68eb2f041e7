/*
Package hbs is the client for the Holo backend services (HBS).

Every request is a POST with a JSON body signed by the holoport key; the
signature travels in the X-Signature header. Calls are throttled with a token
bucket and wrapped in a circuit breaker: after repeated 5xx or transport
failures the breaker opens and calls fail fast with ErrCircuitOpen until HBS
recovers. Breaker state is exported as the hpos_hbs_breaker_state gauge.
*/
package hbs
