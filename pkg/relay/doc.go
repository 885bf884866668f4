// Package relay runs the WebSocket side of webmocket.
//
// Every upgraded connection becomes a Session with two loops over the same
// socket. The inbound loop reads frames and records them in the ledger:
// text payloads verbatim, ping and pong control frames as tags. The
// outbound loop forwards every bus event to the client. When either loop
// ends the other is cancelled, the socket and bus subscription are
// released, and the session is removed from its Manager.
//
// Usage:
//
//	mgr := relay.NewManager(relay.Options{
//		Ledger: l,
//		Bus:    b,
//		Logger: logger,
//	})
//	mux.Handle("GET /ws", mgr.Handler())
//
//	// on shutdown
//	mgr.CloseAll()
//	_ = mgr.Wait(ctx)
package relay
