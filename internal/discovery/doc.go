// Package discovery locates consoles on the local network by debug
// name. Consoles advertise over UDP: a query datagram goes out to the
// monitor ports and every willing console answers with its name from
// the port it serves on.
//
// Ownership boundary:
// - name-advertisement packet grammar (queries and replies)
// - broadcast/unicast query transport and the reply window
// - candidate selection: literal bypass, dedupe, ambiguity
//
// No TCP I/O happens here. The package only produces endpoints for the
// console package to dial.
package discovery
