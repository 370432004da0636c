package timer

import (
	"net"
	"strconv"
)

// Default endpoint values shared by the server and the client.
const (
	DefaultPort       = 47945
	DefaultServerHost = "0.0.0.0"
	DefaultClientHost = "127.0.0.1"
)

// Endpoint is a host and port pair. The server binds to it, the client dials it.
// An Endpoint is immutable once constructed.
type Endpoint struct {
	host string
	port int
}

// NewEndpoint returns the endpoint for host:port.
func NewEndpoint(host string, port int) Endpoint {
	return Endpoint{host: host, port: port}
}

// Host returns the endpoint host.
func (e Endpoint) Host() string {
	return e.host
}

// Port returns the endpoint port.
func (e Endpoint) Port() int {
	return e.port
}

// String returns the endpoint in host:port form, bracketing IPv6 literals.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.host, strconv.Itoa(e.port))
}
