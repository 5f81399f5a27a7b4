package nntp

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"
)

// DefaultConnectTimeout bounds how long dialing a provider may take before
// the connection attempt is abandoned.
const DefaultConnectTimeout = 60 * time.Second

// Transport dials a single byte stream to a provider. It is the one seam
// between the state machine in Conn and the network, so tests can swap in
// an in-memory pipe instead of a real socket.
type Transport interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// netTransport dials plain TCP or TLS depending on UseSSL.
type netTransport struct {
	Host    string
	Port    int
	UseSSL  bool
	Timeout time.Duration

	// InsecureSkipVerify exists only for providers that terminate TLS with a
	// self-signed certificate on a private network. Default false.
	InsecureSkipVerify bool
}

// NewNetTransport builds the default Transport used by NewPool: plain TCP
// dial, or TLS with SNI set to host, negotiated up front (NNTP providers
// don't speak STARTTLS in practice; TLS is decided before the socket opens).
func NewNetTransport(host string, port int, useSSL bool) Transport {
	return &netTransport{
		Host:    host,
		Port:    port,
		UseSSL:  useSSL,
		Timeout: DefaultConnectTimeout,
	}
}

func (t *netTransport) Dial(ctx context.Context) (net.Conn, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))

	if !t.UseSSL {
		return dialer.DialContext(ctx, "tcp", addr)
	}

	tlsConf := &tls.Config{
		ServerName:         t.Host,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConf}
	return tlsDialer.DialContext(ctx, "tcp", addr)
}
