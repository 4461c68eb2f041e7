/*
Package slcheck rotates service logger clones.

Every hosted happ has a service logger app (installed as "<happ id>::servicelogger")
that records usage into one clone cell per time bucket. A pass of the
Orchestrator visits every enabled service logger and:

  - creates the clone for the current bucket if it is missing
  - creates the clone for the next bucket when the boundary is close
  - inside the daily deletion window, retires clones more than two buckets old
    whose invoiced secrets have all been paid

Retiring disables the clone and then deletes it. A clone whose delete fails is
left disabled, and a later pass of the same Orchestrator deletes it without
asking it again. Old clones disabled any other way cannot be asked about their
invoices and are kept. Clone creation that reports a duplicate cell counts as
done.

Failures are isolated per app: a pass returns every success in its Result and
joins the per-app errors. Only a failure to list apps, read the core app cells
or read pending invoices stops the pass before any app is touched; that error
wraps ErrPassNotStarted.

	o := slcheck.New(conductor, ledger, clock, broker, slcheck.Config{
		BucketWidthDays: 14,
		HoloAdmin:       collectorKey,
	})
	res, err := o.Run(ctx)
*/
package slcheck
