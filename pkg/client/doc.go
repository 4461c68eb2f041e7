/*
Package client provides a Go client for a running hpos-api gateway.

The client backs the operator commands of the hpos-api binary. It speaks plain
HTTP to the gateway's loopback listener and decodes its JSON answers.

# Usage

	c, err := client.NewClient("http://127.0.0.1:2300", 5*time.Minute)
	if err != nil {
		return err
	}

	rep, err := c.SLCheck(ctx)
	if err != nil {
		return err
	}
	fmt.Println(len(rep.Cloned), "cloned")

A failed pass, or a rate limited trigger, comes back as *APIError with the
gateway's status code and its first error. History returns the journaled
report of every pass, errors included.

	h, err := c.History(ctx, 10, "")
*/
package client
