/*
Package types defines the conductor-facing data model shared across hpos-api.

These are the shapes the gateway observes from the Holochain conductor: installed
apps and their cells, clone cells, the core app's DNA hashes and the addressing of
a zome call. Zome-specific payloads (hha bundles, holofuel transactions) live with
the packages that decode them.

A service logger is installed per hosted happ under "<happ id>::servicelogger".
AppInfo.IsServiceLogger and AppInfo.HostedHappID implement that convention.
*/
package types
