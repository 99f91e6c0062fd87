// Package transport dials the three wire transports the tomsg Type enum
// names: plaintext TCP, TLS, and WebSocket. All three produce a plain
// io.ReadWriteCloser, so nothing above this package needs to know which
// one it's talking to -- the connection core reads and writes lines the
// same way regardless.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"

	"golang.org/x/net/websocket"
)

// Kind selects which of the three transports Dial uses.
type Kind int

const (
	Plain Kind = iota
	TLS
	WebSocket
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case TLS:
		return "tls"
	case WebSocket:
		return "websocket"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Options configures a Dial call. TLSConfig is consulted for Kind == TLS,
// and for Kind == WebSocket a non-nil TLSConfig selects "wss"; Origin and
// Path are only consulted for Kind == WebSocket.
type Options struct {
	TLSConfig *tls.Config

	// WebSocket-only. Origin defaults to "http://<address>" and Path
	// defaults to "/" when empty.
	Origin string
	Path   string
}

// Dial opens address using the transport named by kind and returns the
// resulting byte stream. The context governs connection setup only; it
// has no effect once Dial returns.
func Dial(ctx context.Context, kind Kind, address string, opts Options) (io.ReadWriteCloser, error) {
	switch kind {
	case Plain:
		var d net.Dialer
		return d.DialContext(ctx, "tcp", address)

	case TLS:
		var d net.Dialer
		tlsDialer := tls.Dialer{NetDialer: &d, Config: opts.TLSConfig}
		return tlsDialer.DialContext(ctx, "tcp", address)

	case WebSocket:
		path := opts.Path
		if path == "" {
			path = "/"
		}
		origin := opts.Origin
		if origin == "" {
			origin = "http://" + address
		}

		scheme := "ws"
		if opts.TLSConfig != nil {
			scheme = "wss"
		}

		cfg, err := websocket.NewConfig(fmt.Sprintf("%s://%s%s", scheme, address, path), origin)
		if err != nil {
			return nil, err
		}
		cfg.TlsConfig = opts.TLSConfig

		conn, err := dialWebSocket(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return conn, nil

	default:
		return nil, fmt.Errorf("transport: unknown kind %v", kind)
	}
}

// dialWebSocket runs websocket.DialConfig on a goroutine so that ctx
// cancellation during the handshake is respected; websocket.DialConfig
// itself takes no context.
func dialWebSocket(ctx context.Context, cfg *websocket.Config) (*websocket.Conn, error) {
	type result struct {
		conn *websocket.Conn
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		conn, err := websocket.DialConfig(cfg)
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		// The handshake may still complete after we give up on it; drain
		// the result in the background and close the socket rather than
		// leaking it.
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		return r.conn, r.err
	}
}
