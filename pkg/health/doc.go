/*
Package health probes the services hpos-api depends on.

TCPChecker dials the conductor's admin and app interfaces; HTTPChecker asks
HBS for any answer below 500. A Monitor runs its checkers on an interval,
tolerates Config.Retries consecutive failures before reporting a dependency
down, and publishes each result as a component of the /health and /ready
endpoints in package metrics.

	m := health.NewMonitor(health.DefaultConfig())
	m.Add(metrics.ComponentConductor, conductorChecker)
	m.Add(metrics.ComponentHBS, health.NewHTTPChecker(hbsURL))
	m.Start()
	defer m.Stop()
*/
package health
