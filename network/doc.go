// Package network carries Arrow IPC batches over ZeroMQ.
//
// ZmqSource binds a PULL socket and hands every received frame to a Handler,
// normally an *api.ArrowHandler. ZmqPublisher is the matching PUSH side.
package network
