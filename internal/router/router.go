// Package router implements the core packet-routing engine: receive,
// classify, route, send. It multiplexes socket reads against a
// peer-reload channel at a single await point, so a reload observed
// between packets is visible to routing before the next packet is
// handled.
package router

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/BergCTF/wireguard-router/internal/config"
	"github.com/BergCTF/wireguard-router/internal/frame"
	"github.com/BergCTF/wireguard-router/internal/logging"
	"github.com/BergCTF/wireguard-router/internal/peer"
	"github.com/BergCTF/wireguard-router/internal/session"
	"github.com/BergCTF/wireguard-router/internal/wgcrypto"
)

// ErrIoFatal wraps a socket error at receive. It is the only fatal
// error class in this system: send errors are swallowed (UDP is
// best-effort) and data-plane/control-plane errors are logged and
// dropped, never propagated out of Run.
var ErrIoFatal = errors.New("io fatal")

// recvBufferSize is large enough for WireGuard's largest datagram
// (bounded by the inner-packet MTU, roughly 1500 bytes); 70 KiB gives
// generous headroom, matching the teacher's own recv buffer sizing
// rationale.
const recvBufferSize = 70 * 1024

// sender is the subset of *net.UDPConn the router needs to forward a
// datagram. Abstracted so dispatch can be unit-tested without a real
// socket, the way the teacher's tests use a loopback UDP pair instead
// of mocking net.Conn itself — here a fake is cheaper for the
// pure-routing-logic tests and loopback sockets are still used for the
// end-to-end scenarios.
type sender interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// Router holds the single-threaded routing engine's state: the socket,
// the current peer snapshot, and the session table.
type Router struct {
	conn  sender
	peers []peer.Peer // owned exclusively by the loop goroutine
	table *session.Table
	log   *logging.Logger
}

// New creates a Router bound to conn with an initial peer snapshot.
func New(conn sender, initial *config.Snapshot, log *logging.Logger) *Router {
	r := &Router{
		conn:  conn,
		table: session.New(),
		log:   log,
	}
	if initial != nil {
		r.peers = initial.Peers
	}
	return r
}

// Reload replaces the router's peer snapshot. Called only from the
// single loop goroutine, at the same await point a packet would be
// received — never concurrently with dispatch.
func (r *Router) Reload(snap *config.Snapshot) {
	r.peers = snap.Peers
	r.log.Info("router: peer set reloaded")
}

// HandleDatagram runs the pre-filter, classifier, and dispatch for one
// received datagram. buf[:size] must not be reused by the caller until
// this call returns (dispatch never retains it past the call). now is
// the receive time, used to stamp any session entries this datagram
// causes to be inserted.
func (r *Router) HandleDatagram(now time.Time, buf []byte, size int, src netip.AddrPort) {
	if !wgcrypto.IsWireGuardFrame(size, buf) {
		return
	}

	f, err := frame.Classify(buf, size)
	if err != nil {
		r.log.Debug("router: dropping invalid packet: ", err.Error())
		return
	}

	switch f.Kind() {
	case frame.HandshakeInitiation:
		r.handleInitiation(now, f, src)
	case frame.HandshakeResponse:
		r.handleResponse(now, f, src)
	case frame.CookieReply:
		r.handleCookieReply(f)
	case frame.TransportData:
		r.handleTransportData(f)
	}
}

func (r *Router) handleInitiation(now time.Time, f frame.Frame, src netip.AddrPort) {
	sender := f.Sender()

	if entry, ok := r.table.Get(sender); ok {
		// Retransmit of an initiation we've already routed: forward to
		// the same backend without re-verifying MAC1 (spec's resolved
		// open question).
		r.send(entry.Backend, f.Raw())
		return
	}

	macInput := f.MAC1Input()
	mac1 := f.MAC1()

	for i := range r.peers {
		p := &r.peers[i]
		if p.MatchesMAC1(macInput, mac1) {
			r.table.Insert(sender, src, p.Addr(), now)
			r.send(p.Addr(), f.Raw())
			return
		}
	}

	r.log.Debug("router: dropping initiation, no backend matched MAC1")
}

func (r *Router) handleResponse(now time.Time, f frame.Frame, src netip.AddrPort) {
	receiver := f.Receiver()
	entry, ok := r.table.Get(receiver)
	if !ok {
		r.log.Debug("router: dropping response, no matching session")
		return
	}

	client := entry.Client
	r.table.Insert(f.Sender(), src, client, now)
	r.send(client, f.Raw())
}

func (r *Router) handleCookieReply(f frame.Frame) {
	entry, ok := r.table.Get(f.Receiver())
	if !ok {
		r.log.Debug("router: dropping cookie reply, no matching session")
		return
	}
	r.send(entry.Client, f.Raw())
}

func (r *Router) handleTransportData(f frame.Frame) {
	entry, ok := r.table.Get(f.Receiver())
	if !ok {
		// Data-plane volume prohibits per-packet logging here.
		return
	}
	r.send(entry.Backend, f.Raw())
}

// send forwards data to addr. Send errors are swallowed: UDP is
// best-effort and a dead backend must not stall the balancer.
func (r *Router) send(addr netip.AddrPort, data []byte) {
	_, _ = r.conn.WriteToUDPAddrPort(data, addr)
}

// Run binds the router to conn's read side and blocks, routing
// datagrams until stop is closed. reload delivers peer-set snapshots
// produced by config.Watch; a pending snapshot is applied after each
// read returns and before that datagram is dispatched, so the new peer
// set is visible before the next datagram is dispatched. Closing stop closes
// conn to unblock the pending read, the same shutdown shape as the
// teacher's Proxy.Run.
func (r *Router) Run(conn *net.UDPConn, reload <-chan *config.Snapshot, stop <-chan struct{}) error {
	if batchAvailable() {
		return r.runBatch(conn, reload, stop)
	}
	return r.runPortable(conn, reload, stop)
}

func (r *Router) runPortable(conn *net.UDPConn, reload <-chan *config.Snapshot, stop <-chan struct{}) error {
	go func() {
		<-stop
		conn.Close()
	}()

	buf := make([]byte, recvBufferSize)
	for {
		n, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
			}
			return fmt.Errorf("%w: %v", ErrIoFatal, err)
		}

		select {
		case snap, ok := <-reload:
			if ok && snap != nil {
				r.Reload(snap)
			}
		default:
		}

		r.HandleDatagram(time.Now(), buf, n, src)
	}
}
