// Package server implements the transports and process wiring for linechat.
//
// The implementation is organized into specialized files for configuration,
// logging, the TCP and WebSocket transports, routing, and HTTP handlers. The
// chat semantics themselves live in package chat; this package only adapts
// sockets to its Conn and Listener contracts and runs the acceptors.
package server
