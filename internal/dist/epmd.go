package dist

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/beamtop/beamtop/internal/errors"
)

// EPMDPort is the well-known port of the Erlang Port Mapper Daemon.
const EPMDPort = 4369

const (
	epmdPortPlease2Req = 122
	epmdPort2Resp      = 119
)

// LookupPort asks the EPMD instance on host for the distribution port of the
// named node. Only the port is needed; the rest of the response (node type,
// protocol, version range) is validated for shape and discarded.
func LookupPort(host, node string, timeout time.Duration) (uint16, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(EPMDPort))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrEPMD,
			fmt.Sprintf("Cannot reach EPMD at %s", addr),
			"Check the host is up and an Erlang node is running on it, or pass the distribution port with --port")
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	req := make([]byte, 0, 3+len(node))
	req = binary.BigEndian.AppendUint16(req, uint16(1+len(node)))
	req = append(req, epmdPortPlease2Req)
	req = append(req, node...)
	if _, err := conn.Write(req); err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrEPMD, "EPMD request failed", "")
	}

	// Error responses carry only the tag and result bytes, so the port
	// words are read separately.
	var head [2]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrEPMD, "EPMD response truncated", "")
	}
	if head[0] != epmdPort2Resp {
		return 0, errors.New(errors.ErrEPMD,
			fmt.Sprintf("Unexpected EPMD response tag %d", head[0]), "")
	}
	if head[1] != 0 {
		return 0, errors.New(errors.ErrEPMD,
			fmt.Sprintf("Node '%s' is not registered with EPMD on %s", node, host),
			"Check the node name; 'epmd -names' on the target lists registered nodes")
	}
	var port [2]byte
	if _, err := io.ReadFull(conn, port[:]); err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrEPMD, "EPMD response truncated", "")
	}
	return binary.BigEndian.Uint16(port[:]), nil
}
