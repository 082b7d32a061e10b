// Package client is the Go SDK for the amortd REST API.
//
// # Authenticated callers
//
// When the service has auth.jwt_secret set, payout calls need a caller
// token. WithCredentials exchanges an address and API secret for one and
// refreshes it before expiry:
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithCredentials("0xBANK", os.Getenv("DEBENTURE_SECRET")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s, err := c.Settle(ctx, 42)
//	fmt.Println(s.Periods, s.Amount) // 3 311.625
//
// # Development (open) mode
//
// Without a JWT secret the service trusts the X-Debenture-Caller header:
//
//	c, _ := client.New("http://localhost:8080", client.WithCaller("0xBANK"))
//
// # Read-only queries
//
// Schedule, Entry, Balance, Receipts, Index and BotStatus need no caller.
//
// # Errors
//
// Every non-2xx response is returned as *APIError; Reason carries the
// service's rejection code such as "no_period_elapsed":
//
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Reason == "no_period_elapsed" {
//	    // nothing due yet
//	}
package client
