package dist

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/beamtop/beamtop/internal/etf"
)

// ErrTimeout is returned when a call's deadline elapses before its response
// arrives. The call is resolved exactly once; a late response for the same
// correlation id is silently discarded by the connection.
var ErrTimeout = stderrors.New("dist: rpc call timed out")

// RemoteError carries the reason term of a call the target evaluated but
// rejected, e.g. {badrpc, {'EXIT', ...}}. It is local to one call and does
// not tear down the connection.
type RemoteError struct {
	Reason etf.Term
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("dist: remote error: %s", e.Reason)
}

// RpcClient issues remote calls against the target node's rex service over
// one established Connection. It is safe for concurrent use; calls are
// correlated by reference, so responses arriving out of order resolve the
// right caller.
type RpcClient struct {
	conn *Connection
}

// NewRpcClient wraps an established connection.
func NewRpcClient(conn *Connection) *RpcClient {
	return &RpcClient{conn: conn}
}

// Call evaluates module:function(args...) on the target node and returns the
// decoded result term. It suspends the caller until the response arrives,
// ctx expires (ErrTimeout), or the connection dies (ErrClosed). The request
// is the gen_server call shape rex expects:
//
//	{'$gen_call', {SelfPid, Ref}, {call, Module, Function, Args, GroupLeader}}
//
// delivered via REG_SEND to the registered rex process; the reply is
// {Ref, Result}.
func (r *RpcClient) Call(ctx context.Context, module, function string, args etf.List) (etf.Term, error) {
	id, pending := r.conn.register()
	ref := r.conn.makeRef(id)
	self := r.conn.selfPid()

	control := etf.Tuple{etf.Int(opRegSend), self, etf.Atom(""), etf.Atom("rex")}
	request := etf.Tuple{
		etf.Atom("$gen_call"),
		etf.Tuple{self, ref},
		etf.Tuple{etf.Atom("call"), etf.Atom(module), etf.Atom(function), args, self},
	}

	if err := r.conn.send(control, request); err != nil {
		r.conn.unregister(id)
		return nil, err
	}

	select {
	case <-pending.done:
		if pending.err != nil {
			return nil, pending.err
		}
		return checkBadRPC(pending.result)
	case <-ctx.Done():
		// Remove the slot so a late response is dropped instead of
		// resolving a caller that already gave up.
		r.conn.unregister(id)
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	case <-r.conn.Done():
		return nil, ErrClosed
	}
}

// CallTimeout is Call with an explicit per-call deadline.
func (r *RpcClient) CallTimeout(module, function string, args etf.List, timeout time.Duration) (etf.Term, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return r.Call(ctx, module, function, args)
}

// checkBadRPC separates the rex error variant from genuine results.
func checkBadRPC(result etf.Term) (etf.Term, error) {
	if t, ok := result.(etf.Tuple); ok && len(t) == 2 {
		if tag, ok := t[0].(etf.Atom); ok && tag == "badrpc" {
			return nil, &RemoteError{Reason: t[1]}
		}
	}
	return result, nil
}
