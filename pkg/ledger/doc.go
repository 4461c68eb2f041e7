/*
Package ledger reads the host's holofuel ledger through the transactor zome of
the core app.

It exposes the raw transaction groups (pending, actionable, completed), the
set of proof-of-service secrets still owed by hosted happs, hosting invoices
with their YAML notes decoded, and redemptions joined with their HBS records.

The secret set returned by PendingSecrets is what gates service logger clone
retirement: a clone whose invoiced secrets appear in it still backs an unpaid
invoice and must be kept.
*/
package ledger
