/*
Package metrics provides Prometheus metrics and health endpoints for hpos-api.

All metrics are package-level collectors registered with the default Prometheus
registry at init time and exposed through Handler on /metrics.

# Metric Families

	hpos_sl_check_passes_total{outcome}          passes by outcome (ok, partial, failed)
	hpos_sl_check_duration_seconds               wall time of one pass
	hpos_sl_clones_created_total                 clones created by ENSURE steps
	hpos_sl_clones_deleted_total                 clones removed by RETIRE_OLD
	hpos_sl_retire_skipped_total{reason}         old clones kept (query_failed, incomplete, pending)
	hpos_sl_retire_failures_total{step}          failed disable or delete calls
	hpos_conductor_call_duration_seconds{method} conductor RPC latency
	hpos_api_requests_total{route,status}        HTTP requests
	hpos_api_request_duration_seconds{route}     HTTP latency
	hpos_hbs_breaker_state                       HBS circuit breaker state

# Timing

Timer wraps the common pattern of measuring an operation and observing the
elapsed seconds:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SLCheckDuration)

# Health

The health registry tracks named components (conductor, hbs, journal, api).
GetHealth reports every registered component; GetReadiness only considers the
critical set, which defaults to conductor and api.
*/
package metrics
