// Package popcclient is a Go client for the popc HTTP API.
//
// Usage:
//
//	client, err := popcclient.New(ctx, popcclient.Config{
//	    BaseURL: "https://popc.internal:8443",
//	    APIKey:  os.Getenv("POPC_API_KEY"),
//	    // Optional: mutual TLS with SVIDs from the local SPIRE agent
//	    ServerID: "spiffe://example.org/popc",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	outcome, err := client.Verify(ctx, ports.VerifyRequest{Asset: photo, Manifest: m})
//
// Non-2xx responses are returned as *APIError. errors.Is matches
// ports.ErrNotFound, ports.ErrConflict and ports.ErrInternal.
package popcclient
