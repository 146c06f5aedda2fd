// Command wireguard-router runs a transparent WireGuard UDP load
// balancer: a single listening socket that routes handshake
// initiations to a backend by MAC1 match, pins the resulting session,
// and forwards every later frame for that session without touching the
// payload.
package main

import (
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/BergCTF/wireguard-router/internal/config"
	"github.com/BergCTF/wireguard-router/internal/logging"
	"github.com/BergCTF/wireguard-router/internal/router"
)

const (
	defaultBindAddr = "0.0.0.0:51337"
	configPath      = "config.toml"
)

func main() {
	bindAddr := defaultBindAddr
	if len(os.Args) > 1 {
		bindAddr = os.Args[1]
	}

	log := logging.FromEnv()

	udpAddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		fatal(err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		fatal(err)
	}
	defer conn.Close()

	log.Info("wireguard-router: listening on ", conn.LocalAddr().String())

	reload := make(chan *config.Snapshot, config.ReloadChannelCapacity)
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()

	watchErr := make(chan error, 1)
	go func() { watchErr <- config.Watch(watchCtx, configPath, reload, log) }()

	var initial *config.Snapshot
	select {
	case initial = <-reload:
	case err := <-watchErr:
		fatal(err)
	}

	r := router.New(conn, initial, log)

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Info("wireguard-router: shutting down")
		cancelWatch()
		close(stop)
	}()

	if err := r.Run(conn, reload, stop); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	_, _ = io.WriteString(os.Stderr, "FATAL: "+err.Error()+"\n")
	os.Exit(1)
}
