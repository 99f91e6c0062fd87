package tomsg

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/lieuwex/tomsg-go/internal/credcache"
	"github.com/lieuwex/tomsg-go/internal/discovery"
	"github.com/lieuwex/tomsg-go/internal/mlog"
	"github.com/lieuwex/tomsg-go/internal/transport"
)

// Type selects which of the three wire transports Connect dials.
type Type int

const (
	TypePlain     Type = iota // raw TCP: "tomsg"
	TypeTLS                   // TLS-wrapped TCP: "tomsgs"
	TypeWebSocket             // WebSocket framing over HTTP(S): "tomsg+ws"
)

func (t Type) kind() transport.Kind {
	switch t {
	case TypeTLS:
		return transport.TLS
	case TypeWebSocket:
		return transport.WebSocket
	default:
		return transport.Plain
	}
}

func (t Type) serviceName() string {
	if t == TypeTLS {
		return "tomsgs"
	}
	return "tomsg"
}

// protocolVersion is the wire version this core speaks, per spec §6.
const protocolVersion = "4"

// Handshake failure sentinels, mirroring the ConnectionAborted /
// ConnectionReset split spec.md §4.5 calls for.
var (
	ErrHandshakeAborted = errors.New("tomsg: version handshake failed: connection aborted (EOF)")
	ErrHandshakeReset   = errors.New("tomsg: version handshake failed: connection reset")
)

// DialOptions configures Connect. The zero value is a reasonable default:
// no TLS, no DNS discovery, and the spec's recommended push buffer size.
type DialOptions struct {
	// TLSConfig is consulted only when Type == TypeTLS (and as the
	// implicit "wss" switch for TypeWebSocket, if non-nil).
	TLSConfig *tls.Config

	// Resolver, if non-nil, is tried for a SRV record before dialing
	// address literally. Leave nil to skip discovery entirely.
	Resolver *discovery.Resolver

	// WebSocket-only: path on the server to dial. Defaults to "/".
	WebSocketPath string

	// PushBufferSize overrides the push channel's capacity. 0 means use
	// the spec's recommended default of 20.
	PushBufferSize int
}

// Connection is a live, multiplexed tomsg connection. All methods are
// safe for concurrent use by multiple goroutines sharing one Connection.
type Connection struct {
	mux   *mux
	creds *credcache.Cache

	authMu       sync.Mutex
	loggedInUser string // "" until a Login/Register succeeds

	writeMu sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
}

// Connect dials address using the given transport Type, performs the
// "version 4" handshake, and returns a ready-to-use Connection along with
// the channel pushes are delivered on. The returned channel is closed
// when the connection closes.
func Connect(ctx context.Context, typ Type, address string, opts DialOptions) (*Connection, <-chan PushMessage, error) {
	targets := []string{address}
	if opts.Resolver != nil {
		targets = discovery.ResolveOrLiteral(ctx, *opts.Resolver, typ.serviceName(), address)
	}

	var (
		conn    io.ReadWriteCloser
		dialErr error
	)
	for _, target := range targets {
		conn, dialErr = transport.Dial(ctx, typ.kind(), target, transport.Options{
			TLSConfig: opts.TLSConfig,
			Path:      opts.WebSocketPath,
		})
		if dialErr == nil {
			break
		}
		mlog.Debug("tomsg: dial %s failed: %v", target, dialErr)
	}
	if dialErr != nil {
		return nil, nil, fmt.Errorf("tomsg: dial failed: %w", dialErr)
	}

	c := &Connection{
		mux:    newMux(opts.PushBufferSize),
		creds:  credcache.New(),
		w:      bufio.NewWriter(conn),
		closer: conn,
	}

	go c.mux.readLoop(conn)

	version, _ := NewWord(protocolVersion)
	if _, err := c.SendCommand(ctx, CommandVersion(version)); err != nil {
		var reason CloseReason
		if errors.As(err, &reason) {
			if reason.EOF {
				return nil, nil, fmt.Errorf("%w", ErrHandshakeAborted)
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeReset, reason.Err)
		}
		return nil, nil, fmt.Errorf("tomsg: version handshake failed: %w", err)
	}

	return c, c.mux.push, nil
}

// DialTCP is Connect with Type fixed to TypePlain.
func DialTCP(ctx context.Context, address string, opts DialOptions) (*Connection, <-chan PushMessage, error) {
	return Connect(ctx, TypePlain, address, opts)
}

// DialTLS is Connect with Type fixed to TypeTLS.
func DialTLS(ctx context.Context, address string, opts DialOptions) (*Connection, <-chan PushMessage, error) {
	return Connect(ctx, TypeTLS, address, opts)
}

// DialWebSocket is Connect with Type fixed to TypeWebSocket.
func DialWebSocket(ctx context.Context, address string, opts DialOptions) (*Connection, <-chan PushMessage, error) {
	return Connect(ctx, TypeWebSocket, address, opts)
}

// SendCommand serializes cmd, allocates a fresh tag, writes "<tag>
// <command>\n" to the wire, and waits for the matching reply.
//
// If ctx is canceled before the reply arrives, SendCommand returns
// ctx.Err() immediately. The pending slot is left in place: a later
// reply or close fanout still resolves it, and that resolution is
// discarded silently, per spec §5.
func (c *Connection) SendCommand(ctx context.Context, cmd Command) (Reply, error) {
	if cmd.kind == cmdLogin && c.creds.LikelyStale(string(cmd.word1), string(cmd.line1)) {
		mlog.Warn("tomsg: login for %s uses a password that differs from the last one that worked here; expecting an error reply", cmd.word1)
	}

	tag, slot, closed := c.mux.allocate()
	if closed != nil {
		return Reply{}, *closed
	}

	line := fmt.Sprintf("%s %s\n", tag, encode(cmd))

	c.writeMu.Lock()
	_, writeErr := c.w.WriteString(line)
	if writeErr == nil {
		writeErr = c.w.Flush()
	}
	c.writeMu.Unlock()

	if writeErr != nil {
		// Per spec §4.4 step 3: the pending slot is left in place so a
		// subsequent reader-side close fans CloseReason out to it; this
		// caller still learns about the failure immediately.
		mlog.Error("tomsg: write for tag %s failed: %v", tag, writeErr)
		return Reply{}, writeErr
	}

	var reply Reply
	select {
	case outcome := <-slot:
		if outcome.err != nil {
			return Reply{}, outcome.err
		}
		reply = outcome.reply
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}

	c.observeAuth(cmd, reply)
	return reply, nil
}

// observeAuth keeps the credential cache and the remembered logged-in
// username in sync with the Login/Register/ChangePassword/Logout
// commands that actually succeeded, so a later Login attempt can be
// checked against the cache before it's ever sent.
func (c *Connection) observeAuth(cmd Command, reply Reply) {
	if reply.Kind != ReplyOk {
		return
	}

	switch cmd.kind {
	case cmdLogin, cmdRegister:
		username := string(cmd.word1)
		if err := c.creds.Remember(username, string(cmd.line1)); err != nil {
			mlog.Warn("tomsg: failed to cache credentials for %s: %v", username, err)
			return
		}
		c.authMu.Lock()
		c.loggedInUser = username
		c.authMu.Unlock()

	case cmdChangePassword:
		c.authMu.Lock()
		username := c.loggedInUser
		c.authMu.Unlock()
		if username == "" {
			return
		}
		if err := c.creds.Remember(username, string(cmd.line1)); err != nil {
			mlog.Warn("tomsg: failed to cache new password for %s: %v", username, err)
		}

	case cmdLogout:
		c.authMu.Lock()
		username := c.loggedInUser
		c.loggedInUser = ""
		c.authMu.Unlock()
		if username != "" {
			c.creds.Forget(username)
		}
	}
}

// CloseReason returns the reason the connection closed, if it has.
func (c *Connection) CloseReason() (CloseReason, bool) {
	return c.mux.closeReasonSnapshot()
}

// IsClosed reports whether the connection has closed.
func (c *Connection) IsClosed() bool {
	_, closed := c.mux.closeReasonSnapshot()
	return closed
}

// Close closes the underlying transport. It does not wait for the reader
// loop to observe the resulting error or EOF and run close fanout;
// callers that need that can poll IsClosed or watch the push channel
// close.
func (c *Connection) Close() error {
	return c.closer.Close()
}
