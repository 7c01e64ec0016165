package dist

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/beamtop/beamtop/internal/errors"
	"github.com/beamtop/beamtop/internal/etf"
	"github.com/beamtop/beamtop/internal/logger"
)

// ErrClosed resolves every pending call when the connection tears down, so
// no caller hangs on a dead stream.
var ErrClosed = stderrors.New("dist: connection closed")

// passThrough is the type byte of a distribution message carrying plain
// external terms (no atom-cache header, which this client never negotiates).
const passThrough = 112

// DefaultTickInterval is how often a keep-alive tick is written. The peer's
// default net_ticktime is 60 seconds; a quarter of that keeps the link alive
// with margin.
const DefaultTickInterval = 15 * time.Second

// pendingCall is a single-use completion slot for one outbound RPC. It is
// resolved exactly once, by a matching response or by connection teardown.
type pendingCall struct {
	done   chan struct{}
	result etf.Term
	err    error
	issued time.Time
}

func (p *pendingCall) resolve(result etf.Term, err error) {
	p.result = result
	p.err = err
	close(p.done)
}

// Connection owns the transport stream after a successful handshake. It
// frames outbound messages, writes periodic keep-alive ticks, and routes
// inbound responses to pending calls by correlation id. A Connection is not
// reusable: on any error it closes and a fresh Handshake+Connection pair
// must be built.
type Connection struct {
	conn net.Conn
	log  logger.Logger

	// Identity adopted during the handshake.
	name      string
	creation  uint32
	peerName  string
	peerFlags uint64

	writeMu sync.Mutex // serializes frames so writes are never torn

	// counter and pending are the only state shared between the read loop
	// and call-issuing goroutines; mu serializes every access.
	mu      sync.Mutex
	counter uint64
	pending map[uint64]*pendingCall

	tickInterval time.Duration
	closed       chan struct{}
	closeOnce    sync.Once
	closeErr     error
}

// NewConnection wraps an authenticated stream. The handshake result supplies
// the adopted node name, creation, and the peer's negotiated flags.
func NewConnection(conn net.Conn, hs *HandshakeResult, log logger.Logger) *Connection {
	if log == nil {
		log = logger.Noop()
	}
	return &Connection{
		conn:         conn,
		log:          log,
		name:         hs.Name,
		creation:     hs.Creation,
		peerName:     hs.PeerName,
		peerFlags:    hs.PeerFlags,
		pending:      make(map[uint64]*pendingCall),
		tickInterval: DefaultTickInterval,
		closed:       make(chan struct{}),
	}
}

// SetTickInterval overrides the keep-alive cadence. Must be called before
// Start.
func (c *Connection) SetTickInterval(d time.Duration) {
	c.tickInterval = d
}

// Start launches the inbound read loop and the keep-alive ticker.
func (c *Connection) Start() {
	go c.readLoop()
	go c.tickLoop()
}

// Name returns the node name the peer assigned during the handshake.
func (c *Connection) Name() string { return c.name }

// PeerName returns the remote node's name.
func (c *Connection) PeerName() string { return c.peerName }

// Done is closed when the connection has terminated for any reason.
func (c *Connection) Done() <-chan struct{} { return c.closed }

// Err reports why the connection terminated, or nil while it is alive.
func (c *Connection) Err() error {
	select {
	case <-c.closed:
		return c.closeErr
	default:
		return nil
	}
}

// Close shuts the connection down and fails all pending calls with ErrClosed.
func (c *Connection) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Connection) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = cause
		c.conn.Close()
		close(c.closed)

		c.mu.Lock()
		pending := c.pending
		c.pending = make(map[uint64]*pendingCall)
		c.mu.Unlock()

		for _, p := range pending {
			p.resolve(nil, ErrClosed)
		}
		if cause != nil && !stderrors.Is(cause, ErrClosed) {
			c.log.Debug("connection to %s terminated: %v", c.peerName, cause)
		}
	})
}

// register allocates the next correlation id and its pending slot. The
// counter is monotonically increasing so ids are never reused within a
// connection.
func (c *Connection) register() (uint64, *pendingCall) {
	p := &pendingCall{done: make(chan struct{}), issued: time.Now()}
	c.mu.Lock()
	c.counter++
	id := c.counter
	c.pending[id] = p
	c.mu.Unlock()
	return id, p
}

// unregister removes a pending call, returning it if it was still tracked.
// Used both on response arrival and on caller timeout; whichever happens
// first wins, guaranteeing exactly one resolution.
func (c *Connection) unregister(id uint64) *pendingCall {
	c.mu.Lock()
	p := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	return p
}

// send writes one framed message: 4-byte length, pass-through byte, control
// term, and optional payload term.
func (c *Connection) send(control etf.Term, payload etf.Term) error {
	body := []byte{passThrough}
	body = append(body, etf.Encode(control)...)
	if payload != nil {
		body = append(body, etf.Encode(payload)...)
	}

	buf := make([]byte, 0, 4+len(body))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)

	c.writeMu.Lock()
	_, err := c.conn.Write(buf)
	c.writeMu.Unlock()
	if err != nil {
		err = errors.Wrap(err, "Connection write failed")
		c.shutdown(err)
		return err
	}
	return nil
}

// tickLoop writes an empty frame on a fixed interval to prevent the peer's
// net_ticktime timeout from dropping an idle link.
func (c *Connection) tickLoop() {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	tick := []byte{0, 0, 0, 0}
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_, err := c.conn.Write(tick)
			c.writeMu.Unlock()
			if err != nil {
				c.shutdown(errors.Wrap(err, "Keep-alive write failed"))
				return
			}
		}
	}
}

// readLoop owns the inbound byte stream: it reads frames, swallows ticks,
// and dispatches everything else. Any read or decode error is terminal.
func (c *Connection) readLoop() {
	for {
		var head [4]byte
		if _, err := io.ReadFull(c.conn, head[:]); err != nil {
			c.shutdown(readError(err))
			return
		}
		size := binary.BigEndian.Uint32(head[:])
		if size == 0 {
			// Keep-alive tick: liveness only, no response required.
			continue
		}
		frame := make([]byte, size)
		if _, err := io.ReadFull(c.conn, frame); err != nil {
			c.shutdown(readError(err))
			return
		}
		if err := c.dispatch(frame); err != nil {
			c.shutdown(err)
			return
		}
	}
}

func readError(err error) error {
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, net.ErrClosed) {
		return errors.WrapWithCode(err, errors.ErrTransport,
			"Connection lost",
			"The node closed the distribution link; reconnect to resume sampling")
	}
	return errors.Wrap(err, "Connection read failed")
}

// dispatch decodes one non-tick frame: a control tuple, optionally followed
// by a payload term. Messages this client did not ask for are logged and
// dropped; it never services inbound calls.
func (c *Connection) dispatch(frame []byte) error {
	if frame[0] != passThrough {
		return errors.New(errors.ErrCodec,
			fmt.Sprintf("Unsupported distribution header type %d", frame[0]),
			"Fragmented messages and atom-cache headers are never negotiated by this client")
	}
	rest := frame[1:]
	control, n, err := etf.Decode(rest)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodec, "Malformed control message", "")
	}
	ctrl, ok := control.(etf.Tuple)
	if !ok || len(ctrl) == 0 {
		return errors.New(errors.ErrCodec, "Control message is not a tuple", "")
	}
	op, ok := ctrl[0].(etf.Int)
	if !ok {
		return errors.New(errors.ErrCodec, "Control message operation is not an integer", "")
	}

	switch op {
	case opSend, opSendSender:
		payload, _, err := etf.Decode(rest[n:])
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrCodec, "Malformed message payload", "")
		}
		c.routeReply(payload)
	default:
		c.log.Debug("dropping unsupported control operation %d from %s", op, c.peerName)
	}
	return nil
}

// routeReply matches a {Ref, Result} reply to its pending call. Replies with
// no matching pending call (late after timeout, or duplicates) are discarded
// with a protocol warning; they must never resolve anything twice.
func (c *Connection) routeReply(payload etf.Term) {
	reply, ok := payload.(etf.Tuple)
	if !ok || len(reply) != 2 {
		c.log.Warn("dropping reply with unexpected shape: %s", payload)
		return
	}
	ref, ok := reply[0].(etf.Ref)
	if !ok || len(ref.IDs) == 0 {
		c.log.Warn("dropping reply without a correlation reference")
		return
	}
	id := uint64(ref.IDs[0])
	if len(ref.IDs) > 1 {
		id |= uint64(ref.IDs[1]) << 32
	}
	p := c.unregister(id)
	if p == nil {
		c.log.Warn("dropping reply for unknown or expired correlation id %d", id)
		return
	}
	p.resolve(reply[1], nil)
}

// makeRef builds the correlation reference embedded in an RPC request. The
// 64-bit counter is split across the first two ID words; the third word
// carries the creation to keep refs visibly distinct in remote logs.
func (c *Connection) makeRef(id uint64) etf.Ref {
	return etf.Ref{
		Node:     etf.Atom(c.name),
		Creation: c.creation,
		IDs:      []uint32{uint32(id), uint32(id >> 32), c.creation},
	}
}

// selfPid is the synthetic process identity replies are addressed to. The
// client has no real processes; one fixed pid is all the rex contract needs.
func (c *Connection) selfPid() etf.Pid {
	return etf.Pid{Node: etf.Atom(c.name), ID: 1, Serial: 0, Creation: c.creation}
}
