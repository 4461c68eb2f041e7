/*
Package config loads the hpos-api configuration.

Values are layered with koanf: built-in defaults, then an optional YAML file
(HPOS_API_CONFIG, or hpos-api.yaml in the working directory), then
environment variables. The environment variables HPOS already exports, such
as HBS_URL, HPOS_CONFIG_PATH and SL_COLLECTOR_PUB_KEY, map onto their config
keys directly. Cobra flags in cmd/hpos-api override the result.
*/
package config
