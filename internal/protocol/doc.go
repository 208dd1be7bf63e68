// Package protocol defines the gateway wire shapes: the frame envelope,
// opcodes, close codes, the handshake payloads (identify, resume, hello,
// ready) and the outbound commands a caller may send.
//
// Inbound frames are decoded into a closed set of Message variants. Unknown
// opcodes become Unrecognized instead of being dropped, so the connection can
// report them.
package protocol
