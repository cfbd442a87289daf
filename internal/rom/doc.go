// Package rom discovers the latest ROM release published by a vendor.
//
// Every vendor implements [Client]: it maps canonical device codenames to the
// identifiers used in its own device catalog and queries its release
// endpoint. Callers obtain a client from a [Registry] keyed by kernel base
// and never branch on the vendor themselves.
//
// Example usage:
//
//	client, err := rom.DefaultRegistry().New(request.BasePA, rom.Options{})
//	if err != nil {
//	    return err
//	}
//
//	release, err := client.LatestRelease(ctx, client.Identity("dumpling"))
package rom
