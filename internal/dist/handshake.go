package dist

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beamtop/beamtop/internal/errors"
	"github.com/beamtop/beamtop/internal/logger"
)

// Sentinel causes wrapped into the structured handshake errors, so callers
// can distinguish a rejection (retryable) from an authentication failure
// (retry would repeat the same failure) with errors.Is.
var (
	ErrRejected   = stderrors.New("dist: handshake rejected by peer")
	ErrAuthFailed = stderrors.New("dist: authentication failed")
)

// handshakeState tracks progress through the strictly linear handshake.
// Every state except stateEstablished can fall into stateAborted, which is
// absorbing: a failed handshake is never resumed or retried on the same
// stream.
type handshakeState int

const (
	stateInitial handshakeState = iota
	stateNameSent
	stateStatusReceived
	stateChallengeReceived
	stateChallengeReplySent
	stateEstablished
	stateAborted
)

func (s handshakeState) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateNameSent:
		return "name_sent"
	case stateStatusReceived:
		return "status_received"
	case stateChallengeReceived:
		return "challenge_received"
	case stateChallengeReplySent:
		return "challenge_reply_sent"
	case stateEstablished:
		return "established"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// HandshakeResult carries everything Connection needs once the stream is
// authenticated: the name and creation the peer assigned to this node, and
// the peer's identity and negotiated flags.
type HandshakeResult struct {
	Name      string
	Creation  uint32
	PeerName  string
	PeerFlags uint64
}

// Handshake drives the version-6 distribution handshake with dynamic node
// naming over a raw duplex stream. It is single-use: one instance per
// connection attempt.
type Handshake struct {
	rw     io.ReadWriter
	cookie string
	host   string
	state  handshakeState
	log    logger.Logger
}

// NewHandshake prepares a handshake over rw. host is the local host name the
// peer uses when assigning this node its dynamic name.
func NewHandshake(rw io.ReadWriter, cookie, host string, log logger.Logger) *Handshake {
	if log == nil {
		log = logger.Noop()
	}
	return &Handshake{rw: rw, cookie: cookie, host: host, state: stateInitial, log: log}
}

// Run executes the full exchange: send_name, recv_status, recv_challenge,
// send_challenge_reply, recv_challenge_ack. Any I/O error or unexpected
// message aborts immediately.
func (h *Handshake) Run() (*HandshakeResult, error) {
	if h.state != stateInitial {
		return nil, h.abort(errors.New(errors.ErrHandshake,
			"Handshake already consumed", "Build a fresh handshake per connection attempt"))
	}

	if err := h.sendName(); err != nil {
		return nil, h.abort(err)
	}
	res := &HandshakeResult{}
	if err := h.recvStatus(res); err != nil {
		return nil, h.abort(err)
	}
	challenge, err := h.recvChallenge(res)
	if err != nil {
		return nil, h.abort(err)
	}
	ourChallenge, err := h.sendChallengeReply(challenge)
	if err != nil {
		return nil, h.abort(err)
	}
	if err := h.recvChallengeAck(ourChallenge); err != nil {
		return nil, h.abort(err)
	}
	h.state = stateEstablished
	h.log.Debug("handshake established as %s (peer %s, flags %#x)",
		res.Name, res.PeerName, res.PeerFlags)
	return res, nil
}

func (h *Handshake) abort(err error) error {
	h.log.Debug("handshake aborted in state %s: %v", h.state, err)
	h.state = stateAborted
	return err
}

// sendName emits the 'N' message: flags, creation placeholder, and the local
// host name. With flagNameMe set the peer assigns the actual node name.
func (h *Handshake) sendName() error {
	msg := make([]byte, 0, 15+len(h.host))
	msg = append(msg, 'N')
	msg = binary.BigEndian.AppendUint64(msg, ourFlags)
	msg = binary.BigEndian.AppendUint32(msg, 0) // creation, assigned by peer
	msg = binary.BigEndian.AppendUint16(msg, uint16(len(h.host)))
	msg = append(msg, h.host...)
	if err := h.writeFrame(msg); err != nil {
		return err
	}
	h.state = stateNameSent
	return nil
}

func (h *Handshake) recvStatus(res *HandshakeResult) error {
	if h.state != stateNameSent {
		return fmt.Errorf("recv_status in state %s", h.state)
	}
	frame, err := h.readFrame()
	if err != nil {
		return err
	}
	if len(frame) < 1 || frame[0] != 's' {
		return errors.New(errors.ErrHandshake,
			"Peer sent an unexpected message instead of a status", "")
	}
	status := string(frame[1:])
	switch {
	case status == "ok" || status == "ok_simultaneous":
		// Keeps whatever name was offered; nothing to adopt.
	case strings.HasPrefix(status, "named:"):
		rest := frame[7:]
		if len(rest) < 2 {
			return errors.New(errors.ErrHandshake, "Malformed 'named:' status", "")
		}
		n := binary.BigEndian.Uint16(rest)
		if len(rest) < 2+int(n)+4 {
			return errors.New(errors.ErrHandshake, "Malformed 'named:' status", "")
		}
		res.Name = string(rest[2 : 2+n])
		res.Creation = binary.BigEndian.Uint32(rest[2+n:])
	default:
		return errors.WrapWithCode(ErrRejected, errors.ErrHandshake,
			fmt.Sprintf("Peer rejected the connection with status '%s'", status),
			"The node may be overloaded or already see a conflicting connection; try again")
	}
	h.state = stateStatusReceived
	return nil
}

func (h *Handshake) recvChallenge(res *HandshakeResult) (uint32, error) {
	if h.state != stateStatusReceived {
		return 0, fmt.Errorf("recv_challenge in state %s", h.state)
	}
	frame, err := h.readFrame()
	if err != nil {
		return 0, err
	}
	// 'N': flags u64, challenge u32, creation u32, name length u16, name.
	if len(frame) < 19 || frame[0] != 'N' {
		return 0, errors.New(errors.ErrHandshake,
			"Peer sent an unexpected message instead of a challenge", "")
	}
	res.PeerFlags = binary.BigEndian.Uint64(frame[1:9])
	challenge := binary.BigEndian.Uint32(frame[9:13])
	nameLen := binary.BigEndian.Uint16(frame[17:19])
	if len(frame) < 19+int(nameLen) {
		return 0, errors.New(errors.ErrHandshake, "Malformed challenge message", "")
	}
	res.PeerName = string(frame[19 : 19+nameLen])
	h.state = stateChallengeReceived
	return challenge, nil
}

func (h *Handshake) sendChallengeReply(peerChallenge uint32) (uint32, error) {
	if h.state != stateChallengeReceived {
		return 0, fmt.Errorf("send_challenge_reply in state %s", h.state)
	}
	var raw [4]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return 0, err
	}
	ourChallenge := binary.BigEndian.Uint32(raw[:])

	msg := make([]byte, 0, 21)
	msg = append(msg, 'r')
	msg = binary.BigEndian.AppendUint32(msg, ourChallenge)
	msg = append(msg, challengeDigest(h.cookie, peerChallenge)...)
	if err := h.writeFrame(msg); err != nil {
		return 0, err
	}
	h.state = stateChallengeReplySent
	return ourChallenge, nil
}

func (h *Handshake) recvChallengeAck(ourChallenge uint32) error {
	if h.state != stateChallengeReplySent {
		return fmt.Errorf("recv_challenge_ack in state %s", h.state)
	}
	frame, err := h.readFrame()
	if err != nil {
		return err
	}
	if len(frame) != 17 || frame[0] != 'a' {
		return errors.New(errors.ErrHandshake,
			"Peer sent an unexpected message instead of a challenge ack", "")
	}
	expected := challengeDigest(h.cookie, ourChallenge)
	if !digestEqual(frame[1:], expected) {
		return errors.WrapWithCode(ErrAuthFailed, errors.ErrHandshake,
			"Authentication failed: cookie mismatch",
			"The peer's digest does not match; check the cookie (usually ~/.erlang.cookie on the target)")
	}
	return nil
}

// challengeDigest computes MD5(cookie ++ decimal(challenge)), the mutual
// authentication digest of the distribution handshake.
func challengeDigest(cookie string, challenge uint32) []byte {
	h := md5.New()
	io.WriteString(h, cookie)
	io.WriteString(h, strconv.FormatUint(uint64(challenge), 10))
	return h.Sum(nil)
}

// digestEqual compares two digests without early exit. The handshake is not
// secret-bound on timing, but there is no reason to leak it either.
func digestEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// Handshake messages use 2-byte big-endian length framing; the 4-byte frames
// start only once the connection is established.

func (h *Handshake) writeFrame(msg []byte) error {
	buf := make([]byte, 0, 2+len(msg))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg)))
	buf = append(buf, msg...)
	if _, err := h.rw.Write(buf); err != nil {
		return errors.Wrap(err, "Handshake write failed")
	}
	return nil
}

func (h *Handshake) readFrame() ([]byte, error) {
	var head [2]byte
	if _, err := io.ReadFull(h.rw, head[:]); err != nil {
		return nil, errors.Wrap(err, "Handshake read failed")
	}
	frame := make([]byte, binary.BigEndian.Uint16(head[:]))
	if _, err := io.ReadFull(h.rw, frame); err != nil {
		return nil, errors.Wrap(err, "Handshake read failed")
	}
	return frame, nil
}
