package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/igentai/genorch/core"
)

// Size limits from the framing contract: control traffic (commands and
// dashboard chatter) is capped at 1 MiB; the worker-update socket, which
// carries the bulk attribute batches, gets a 10 MiB allowance. A reader drops (never panics on) a
// frame whose declared length exceeds the limit it was configured with.
const (
	MaxControlFrame = 1 << 20
	MaxDataFrame    = 10 << 20
)

// WriteFrame writes a single 4-byte big-endian length prefix followed by
// payload to w. One frame per call; callers open a fresh connection per
// message rather than multiplexing, so there is no interleaving to guard
// against here.
func WriteFrame(w io.Writer, payload []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("%w: write length prefix: %v", core.ErrConnectionFailed, err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("%w: write payload: %v", core.ErrConnectionFailed, err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. maxSize bounds the
// accepted payload length; a frame whose declared length exceeds maxSize is
// drained from the stream (so the connection can proceed to its next frame,
// or be cleanly closed) and core.ErrFrameTooLarge is returned.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: read length prefix: %v", core.ErrConnectionFailed, err)
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if int(size) > maxSize {
		if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
			return nil, fmt.Errorf("%w: draining oversize frame: %v", core.ErrConnectionFailed, err)
		}
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d byte limit", core.ErrFrameTooLarge, size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: read payload: %v", core.ErrConnectionFailed, err)
	}
	return payload, nil
}

// Send opens a new outbound connection to addr, writes one framed payload,
// and closes the connection. This mirrors the "writer opens a connection
// per message" policy: on loopback the per-message dial cost is negligible
// and it avoids any need to multiplex or queue writes on a shared socket.
func Send(addr string, payload []byte) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", core.ErrConnectionFailed, addr, err)
	}
	defer conn.Close()
	return WriteFrame(conn, payload)
}

// Listener wraps a net.Listener, accepting connections and reading framed
// payloads from each until EOF or error, handing each complete payload to
// handle. One background accept loop runs per listener; one read loop runs
// per accepted connection.
type Listener struct {
	ln      net.Listener
	maxSize int
}

// Listen binds addr and returns a Listener ready for Serve. maxSize governs
// the per-frame size limit applied to every connection accepted by this
// listener (MaxControlFrame for command and dashboard sockets, MaxDataFrame
// for the worker-update socket, which carries attribute batches).
func Listen(addr string, maxSize int) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", core.ErrConnectionFailed, addr, err)
	}
	return &Listener{ln: ln, maxSize: maxSize}, nil
}

// Addr returns the bound address, letting callers that asked for port 0
// discover the port the OS actually assigned.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve runs the accept loop until Close is called or accept fails. Each
// accepted connection is handled in its own goroutine by readLoop; handle is
// invoked once per complete frame, in the order frames arrive on that
// connection.
func (l *Listener) Serve(handle func(payload []byte)) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return err
		}
		go l.readLoop(conn, handle)
	}
}

func (l *Listener) readLoop(conn net.Conn, handle func(payload []byte)) {
	defer conn.Close()
	for {
		payload, err := ReadFrame(conn, l.maxSize)
		if err != nil {
			return
		}
		handle(payload)
	}
}
