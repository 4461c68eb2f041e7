/*
Package hosted manages the happs this holoport hosts.

It reads the hosted happ registry (hha) and joins each registered happ with
what the host knows about it: completed hosting invoices from the ledger,
service logger usage and the source chains installed for web users. Fields
that cannot be computed are reported as null rather than failing the whole
listing.

Write operations toggle hosting in hha, register new happs and install a
happ together with its service logger. The service logger is installed with
the same properties the clone rotation in package slcheck binds its clones
to, for the bucket current at install time.
*/
package hosted
