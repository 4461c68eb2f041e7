// Package keys loads the holoport ed25519 key from the HPOS config file and
// signs requests to HBS with it.
package keys
