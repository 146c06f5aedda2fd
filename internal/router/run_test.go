package router

import (
	"encoding/base64"
	"net"
	"testing"
	"time"

	"github.com/BergCTF/wireguard-router/internal/config"
	"github.com/BergCTF/wireguard-router/internal/frame"
	"github.com/BergCTF/wireguard-router/internal/logging"
	"github.com/BergCTF/wireguard-router/internal/peer"
	"github.com/BergCTF/wireguard-router/internal/wgcrypto"
)

// TestRunEndToEndLoopback exercises the real Run loop (the recvmmsg
// batch transport on Linux, the portable transport elsewhere) over
// loopback sockets: a fake backend, a fake client, and the router
// sitting between them.
func TestRunEndToEndLoopback(t *testing.T) {
	backendConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen backend: %v", err)
	}
	defer backendConn.Close()
	backendAddr := backendConn.LocalAddr().(*net.UDPAddr)

	var pk [32]byte
	for i := range pk {
		pk[i] = byte(i + 1)
	}
	p, err := peer.New(backendAddr.String(), base64.StdEncoding.EncodeToString(pk[:]))
	if err != nil {
		t.Fatalf("peer.New: %v", err)
	}

	routerConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen router: %v", err)
	}
	routerAddr := routerConn.LocalAddr().(*net.UDPAddr)

	r := New(routerConn, &config.Snapshot{Peers: []peer.Peer{p}}, logging.New(logging.LevelNone))
	reload := make(chan *config.Snapshot)
	stop := make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- r.Run(routerConn, reload, stop) }()
	defer func() {
		close(stop)
		<-done
	}()

	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}
	defer clientConn.Close()

	senderID := frame.Identity{1, 2, 3, 4}
	init := buildInitiation(senderID, pk)
	if _, err := clientConn.WriteToUDP(init, routerAddr); err != nil {
		t.Fatalf("client write: %v", err)
	}

	backendConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 2048)
	n, from, err := backendConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("backend did not receive initiation: %v", err)
	}
	if n != len(init) {
		t.Fatalf("backend received %d bytes, want %d", n, len(init))
	}
	if wgcrypto.Hash(buf[:n]) != wgcrypto.Hash(init) {
		t.Fatal("backend received payload does not match the client's initiation")
	}

	response := buildResponse(frame.Identity{9, 9, 9, 9}, senderID)
	if _, err := backendConn.WriteToUDP(response, from); err != nil {
		t.Fatalf("backend write: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	n, _, err = clientConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("client did not receive response: %v", err)
	}
	if n != len(response) {
		t.Fatalf("client received %d bytes, want %d", n, len(response))
	}
}
