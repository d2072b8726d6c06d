// Package client provides the top-level corelink client.
//
// A Client wires the building blocks together: the connection
// coordinator picks and monitors a transport, the session negotiator
// establishes the shared secret over it, the auth coordinator manages
// tokens, the router dispatches requests, and the offline queue holds
// operations made while disconnected.
//
// # Lifecycle
//
//	cfg, err := client.LoadConfig("corelink.yaml")
//	c, err := client.New(cfg, client.Options{Refresher: refresher})
//	err = c.Start()
//	defer c.Close()
//
// After Start the client connects in the background. Requests issued
// through Do fail with connection or session errors until the
// transport and session are up; operations enqueued through Enqueue
// are replayed automatically once they are.
package client
