// Package chat implements the line-oriented chat core: a fixed-capacity
// session registry, the command parser, the message router, the per-connection
// session handler, and the acceptor that spawns one handler per connection.
//
// The core only depends on the Conn and Listener contracts, so the same
// handler serves raw TCP clients and WebSocket clients alike.
package chat
