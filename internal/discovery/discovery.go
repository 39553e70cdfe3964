// Package discovery implements the UDP exchange clients use to find a chat
// server on the local network without configuration: a fixed request string
// broadcast to the subnet, answered by the server's responder with a fixed
// response string.
package discovery

import (
	"errors"
	"log/slog"
	"net"
	"time"
)

const (
	Request  = "DISCOVER_CHAT_SERVER_REQUEST"
	Response = "DISCOVER_CHAT_SERVER_RESPONSE"

	DefaultPort = 8888
)

// ErrNoServer means no responder answered within the timeout; the caller is
// expected to fall back to hosting a server itself.
var ErrNoServer = errors.New("discovery: no server responded")

// Responder answers discovery requests on a UDP port. It runs next to the
// chat listener; the client learns the server address from the source of
// the reply.
type Responder struct {
	port   int
	logger *slog.Logger
	conn   *net.UDPConn
	doneCh chan struct{}
}

func NewResponder(port int, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{port: port, logger: logger, doneCh: make(chan struct{})}
}

func (r *Responder) Start() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: r.port})
	if err != nil {
		return err
	}
	r.conn = conn
	r.logger.Info("discovery responder started", "addr", conn.LocalAddr().String())
	go r.serve()
	return nil
}

// Port returns the bound port, useful when the responder was started on 0.
func (r *Responder) Port() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// Stop closes the socket and waits for the serve loop to finish.
func (r *Responder) Stop() {
	if r.conn != nil {
		r.conn.Close()
		<-r.doneCh
	}
}

func (r *Responder) serve() {
	defer close(r.doneCh)
	buf := make([]byte, 1024)
	for {
		n, src, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			// Socket closed.
			return
		}
		if string(buf[:n]) != Request {
			continue
		}
		if _, err := r.conn.WriteToUDP([]byte(Response), src); err != nil {
			r.logger.Warn("failed to answer discovery request", "peer", src.String(), "error", err)
			continue
		}
		r.logger.Debug("answered discovery request", "peer", src.String())
	}
}

// Locate broadcasts a discovery request to the limited broadcast address and
// to every local subnet's directed broadcast address, then waits up to
// timeout for a server to answer. It returns the responding server's IP.
func Locate(port int, timeout time.Duration, logger *slog.Logger) (net.IP, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	targets := append([]*net.UDPAddr{{IP: net.IPv4bcast, Port: port}}, broadcastAddrs(port)...)
	for _, addr := range targets {
		if _, err := conn.WriteToUDP([]byte(Request), addr); err != nil {
			logger.Debug("broadcast send failed", "addr", addr.String(), "error", err)
			continue
		}
		logger.Debug("sent discovery request", "addr", addr.String())
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, 1024)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, ErrNoServer
		}
		if string(buf[:n]) == Response {
			logger.Info("found chat server", "addr", src.IP.String())
			return src.IP, nil
		}
	}
}

// broadcastAddrs computes the directed broadcast address (ip | ^mask) of
// every up, non-loopback IPv4 interface.
func broadcastAddrs(port int) []*net.UDPAddr {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var out []*net.UDPAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			mask := ipnet.Mask
			if len(mask) == net.IPv6len {
				mask = mask[12:]
			}
			if len(mask) != net.IPv4len {
				continue
			}
			bcast := make(net.IP, net.IPv4len)
			for i := range bcast {
				bcast[i] = ip4[i] | ^mask[i]
			}
			out = append(out, &net.UDPAddr{IP: bcast, Port: port})
		}
	}
	return out
}
