// Package control implements the HTTP control surface used by tests to
// drive webmocket.
//
// Routes:
//
//	GET    /messages  list every recorded inbound message as a JSON array
//	POST   /messages  broadcast the raw request body as a text frame
//	DELETE /messages  clear the recorded messages
//	POST   /ping      broadcast a ping frame
//	POST   /pong      broadcast a pong frame
//	GET    /health    report liveness and session counts
//	GET    /metrics   Prometheus text exposition
//
// The WebSocket upgrade route is mounted on the same mux by Handler.
package control
