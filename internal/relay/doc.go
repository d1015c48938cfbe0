// Package relay implements the room/session coordination core of the
// signaling relay: the mapping of identities to live connections, room
// membership, and the routing of typed signaling events between peers.
//
// All mutable state (the identity registry and room membership) is owned by
// a single Hub goroutine; transports hand events to the Hub over channels and
// never touch the maps directly. Delivery back to a connection is
// fire-and-forget: the relay does not buffer, retry, or acknowledge, and a
// send to a dead connection is simply dropped.
package relay
