// Package rcon implements a persistent client for the Minecraft RCON
// protocol used to drive the game server.
package rcon

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Packet types. AUTH_RESPONSE shares a value with EXEC; responses are told
// apart by direction.
const (
	typeResponse     int32 = 0
	typeExec         int32 = 2
	typeAuth         int32 = 3
	typeAuthResponse int32 = 2
)

const (
	authPacketID int32 = 1
	execPacketID int32 = 2

	connectTimeout = 10 * time.Second
	ioTimeout      = 30 * time.Second

	// two int32s plus the two NUL terminators
	packetOverhead = 10

	maxPacketSize = 1 << 20
)

var (
	ErrUnreachable  = errors.New("server unreachable")
	ErrAuthFailed   = errors.New("authentication failed")
	ErrDisconnected = errors.New("connection lost")
	ErrProtocol     = errors.New("malformed packet")
)

// Client is a persistent RCON session. The zero value is not usable; use
// NewClient. All methods are safe for concurrent use: a single mutex
// serializes the request/response cycle, so at most one command is in flight
// per Client at any time.
type Client struct {
	Log zerolog.Logger

	host     string
	port     int
	password string

	mu   sync.Mutex
	conn net.Conn
}

// NewClient creates a client for the given server. No connection is made
// until the first Exec.
func NewClient(host string, port int, password string, log zerolog.Logger) *Client {
	return &Client{
		Log:      log,
		host:     host,
		port:     port,
		password: password,
	}
}

// Exec executes a command on the server and returns its response payload,
// connecting and authenticating first if there is no live session. On any
// socket error the connection is closed and marked dead; the next Exec will
// reconnect.
func (c *Client) Exec(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return "", err
		}
	}

	c.conn.SetDeadline(time.Now().Add(ioTimeout))

	if err := writePacket(c.conn, execPacketID, typeExec, command); err != nil {
		c.reset()
		return "", fmt.Errorf("%w: send command: %v", ErrDisconnected, err)
	}
	_, _, payload, err := readPacket(c.conn)
	if err != nil {
		c.reset()
		if errors.Is(err, ErrProtocol) {
			return "", err
		}
		return "", fmt.Errorf("%w: read response: %v", ErrDisconnected, err)
	}
	return payload, nil
}

// Close closes the session. It is idempotent, and the client remains usable:
// the next Exec reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	return nil
}

// connect dials and authenticates. Caller must hold c.mu.
func (c *Client) connect(ctx context.Context) error {
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(c.host, fmt.Sprint(c.port)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	conn.SetDeadline(time.Now().Add(connectTimeout))
	if err := writePacket(conn, authPacketID, typeAuth, c.password); err != nil {
		conn.Close()
		return fmt.Errorf("%w: send auth: %v", ErrUnreachable, err)
	}
	id, _, _, err := readPacket(conn)
	if err != nil {
		conn.Close()
		if errors.Is(err, ErrProtocol) {
			return err
		}
		return fmt.Errorf("%w: read auth response: %v", ErrUnreachable, err)
	}
	if id == -1 {
		conn.Close()
		return ErrAuthFailed
	}

	c.conn = conn
	c.Log.Debug().Str("host", c.host).Int("port", c.port).Msg("rcon session established")
	return nil
}

// reset drops the connection. Caller must hold c.mu.
func (c *Client) reset() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func writePacket(w io.Writer, id, typ int32, payload string) error {
	body := make([]byte, 0, 8+len(payload)+2)
	body = binary.LittleEndian.AppendUint32(body, uint32(id))
	body = binary.LittleEndian.AppendUint32(body, uint32(typ))
	body = append(body, payload...)
	body = append(body, 0, 0)

	pkt := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+len(body)), uint32(len(body)))
	pkt = append(pkt, body...)

	_, err := w.Write(pkt)
	return err
}

func readPacket(r io.Reader) (id, typ int32, payload string, err error) {
	var hdr [4]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return
	}
	n := int32(binary.LittleEndian.Uint32(hdr[:]))
	if n < packetOverhead || n > maxPacketSize {
		err = fmt.Errorf("%w: length %d", ErrProtocol, n)
		return
	}

	body := make([]byte, n)
	if _, err = io.ReadFull(r, body); err != nil {
		return
	}
	id = int32(binary.LittleEndian.Uint32(body[0:4]))
	typ = int32(binary.LittleEndian.Uint32(body[4:8]))

	// the declared length is authoritative; the payload may contain embedded
	// NULs, so only the trailing terminator pair is stripped
	payload = string(body[8 : n-2])
	return
}
