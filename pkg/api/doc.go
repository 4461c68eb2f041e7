/*
Package api implements the hpos-api HTTP gateway.

The gateway is the HoloPort's local control surface. The host console and
operator tooling call it over HTTP; it turns each request into conductor zome
calls, HBS lookups, or a service logger check, and answers with JSON.

# Architecture

	┌────────────── CLIENT (host console / hpos-api sl-check) ─────────────┐
	└──────────────────────────────┬───────────────────────────────────────┘
	                               │ HTTP (127.0.0.1:2300)
	┌──────────────────────────────▼──── pkg/api ──────────────────────────┐
	│  chi router                                                           │
	│   requestID → RealIP → Recoverer → instrument                         │
	│                                                                       │
	│   /apps/hosted/sl-check ──► httprate ──► singleflight ──► SLChecker   │
	│   /apps/hosted/...      ──► HostedHapps                               │
	│   /host/...             ──► Ledger (+ HBS RecordSource)               │
	│   /apps/call_zome       ──► ZomeCaller                                │
	│   /health /ready /metrics                                             │
	└──────────────┬──────────────────────────────┬─────────────────────────┘
	               │                              │
	        conductor (ws)                   journal (bbolt)

# Routes

	GET  /                              alive + holoport id
	GET  /core/version                  core app id
	POST /apps/call_zome                raw zome call passthrough
	GET  /apps/hosted                   hosted happ details
	GET  /apps/hosted/sl-check          one service logger check
	GET  /apps/hosted/sl-check/history  journaled passes and events
	POST /apps/hosted/install           install a registered happ
	POST /apps/hosted/register          register a happ in hha
	GET  /apps/hosted/{id}              one hosted happ
	POST /apps/hosted/{id}/enable       enable hosting
	POST /apps/hosted/{id}/disable      disable hosting
	GET  /apps/hosted/{id}/logs         service logger records
	GET  /host/invoices                 hosting invoices
	GET  /host/redemptions              redemption transactions
	GET  /host/redeemable_histogram     redeemable balance + last 7 days
	GET  /host/billing_preferences      host's default hosting prices
	GET  /holoport/usage                usage summary

# Service logger check

A GET on /apps/hosted/sl-check runs one pass of the orchestrator. Triggers
that arrive while a pass is running wait for it and receive its report, so
two passes never overlap. The pass runs detached from the caller's context;
a client that disconnects does not cancel a pass others wait on.

A pass where every app succeeded answers 200 with the report:

	{
	  "serviceLoggersCloned":  [["<happ>::servicelogger", "sl-14-40"]],
	  "serviceLoggersDeleted": []
	}

Any failure answers 500 with the first error, whether the pass could not
start or a single app failed. Every pass, with all of its errors, is written
to the journal when one is configured.

# Errors

Failures are JSON objects with a single error field. Malformed bodies,
validation failures, bad query parameters and invalid happ ids answer 400;
everything else answers 500.

# Usage

	srv := api.NewServer(api.Deps{
		SLCheck: orchestrator,
		Hosted:  hostedService,
		Ledger:  ledger,
		Records: hbsClient,
		Zome:    appClient,
		Journal: journal,
	}, api.Config{CoreAppID: "core-app", SLCheckPerMinute: 6})

	go srv.Start("127.0.0.1:2300")
	defer srv.Shutdown(ctx)
*/
package api
