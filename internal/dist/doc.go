// Package dist speaks the Erlang distribution protocol as a hidden node.
//
// A session has three phases:
//
//  1. EPMD lookup - LookupPort asks the Erlang Port Mapper Daemon on the
//     target host which TCP port the node listens on.
//  2. Handshake - Handshake runs the version 6 handshake over a fresh TCP
//     connection. We request dynamic node naming, so the peer assigns our
//     node name and creation. Authentication is the classic MD5
//     challenge/response over the shared cookie.
//  3. Connected - Connection frames messages with 4-byte lengths, answers
//     keep-alive ticks, and routes RPC replies back to their callers.
//     RpcClient issues rex calls (the gen_server behind rpc:call/4) and
//     correlates replies by reference.
//
// The node never publishes itself: it has no listen socket and is invisible
// to nodes()/1 on the peer, like a remote shell started with -hidden.
package dist
