//go:build !linux

package router

import (
	"net"

	"github.com/BergCTF/wireguard-router/internal/config"
)

func batchAvailable() bool { return false }

func (r *Router) runBatch(conn *net.UDPConn, reload <-chan *config.Snapshot, stop <-chan struct{}) error {
	return r.runPortable(conn, reload, stop)
}
