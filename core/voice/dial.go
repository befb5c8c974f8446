package voice

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Timeouts bounds every stage of a call. Read and Write apply to each I/O
// operation on the connection, Call to the whole exchange including the body.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
	Call    time.Duration
}

// DefaultTimeouts is 60s per connect, read and write, 2 minutes per call.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: 60 * time.Second,
		Read:    60 * time.Second,
		Write:   60 * time.Second,
		Call:    2 * time.Minute,
	}
}

// deadlineConn refreshes the read or write deadline before every operation.
// A write also pushes the read deadline forward so that a pooled connection
// idling in the transport's read loop gets a full read window per request.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	now := time.Now()
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(now.Add(c.write)); err != nil {
			return 0, err
		}
	}
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(now.Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

func newTransport(t Timeouts) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   t.Connect,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, read: t.Read, write: t.Write}, nil
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   t.Connect,
		ResponseHeaderTimeout: t.Read,
		ExpectContinueTimeout: time.Second,
	}
}
