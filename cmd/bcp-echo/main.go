// Command bcp-echo is a runnable demo of a BCP session carried over a
// plain TCP connection, standing in for the unreliable GATT link this
// protocol was designed for. It runs in one of two roles: -listen
// accepts a connection and echoes every message it receives back to the
// sender; -connect dials a listener and sends a burst of test messages,
// timing the round trip of each.
//
// Each outbound slice from a session's Output callback is written to the
// TCP stream behind a 2-byte length prefix, since a stream socket has no
// notion of message boundaries the way a GATT characteristic write does.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/realkv/lab-bcp"
	"github.com/realkv/lab-bcp/internal/handshake"
	"github.com/realkv/lab-bcp/internal/logging"
)

func main() {
	var (
		listenAddr = flag.String("listen", "", "listen address (server role), e.g. :4097")
		connectTo  = flag.String("connect", "", "address to dial (client role), e.g. 127.0.0.1:4097")
		mtu        = flag.Uint("mtu", 185, "link MTU in bytes, mirroring a GATT negotiated MTU")
		mfsScale   = flag.Uint("mfs-scale", 9, "max frame size as a multiple of mtu")
		mal        = flag.Uint("mal", 4096, "maximum application message length")
		count      = flag.Uint("count", 10, "client role: number of test messages to send")
		size       = flag.Uint("size", 512, "client role: size in bytes of each test message")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.New(logConfig)
	logging.SetLevel(logConfig.Level)

	cfg := bcp.DefaultConfig()
	cfg.MTU = uint16(*mtu)
	cfg.MFSScale = uint8(*mfsScale)
	cfg.MAL = uint32(*mal)
	cfg.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch {
	case *listenAddr != "":
		err = runServer(ctx, *listenAddr, cfg)
	case *connectTo != "":
		err = runClient(ctx, *connectTo, cfg, int(*count), int(*size))
	default:
		fmt.Fprintln(os.Stderr, "usage: bcp-echo -listen :4097  |  bcp-echo -connect 127.0.0.1:4097")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("bcp-echo exited with error", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, addr string, cfg bcp.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()
	logging.Info("listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := serveConn(ctx, conn, cfg); err != nil {
				logging.Error("connection handler exited", "error", err)
			}
		}()
	}
}

// serveConn runs one session over an accepted connection, echoing every
// reassembled message back to the peer.
func serveConn(ctx context.Context, conn net.Conn, cfg bcp.Config) error {
	defer conn.Close()
	tag := "server-" + conn.RemoteAddr().String()

	var s *bcp.Session
	iface := bcp.Interface{
		Output: func(slice []byte) error { return writeFramed(conn, slice) },
		DataListener: func(msg []byte) {
			logging.Info("echoing message", "tag", tag, "bytes", len(msg))
			if err := s.Send(msg); err != nil {
				logging.Error("echo send failed", "tag", tag, "error", err)
			}
		},
	}

	s, err := bcp.Create(cfg, iface, tag, nil)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer s.Destroy()

	pumpErr := make(chan error, 1)
	go func() { pumpErr <- pumpInput(ctx, conn, s) }()

	opened := make(chan handshake.OpenStatus, 1)
	if err := s.Open(2000, func(st handshake.OpenStatus) { opened <- st }); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	select {
	case st := <-opened:
		if st != handshake.OpenOK {
			return fmt.Errorf("handshake failed: %v", st)
		}
	case <-time.After(5 * time.Second):
		return fmt.Errorf("handshake never completed")
	}
	logging.Info("session open", "tag", tag)

	return <-pumpErr
}

func runClient(ctx context.Context, addr string, cfg bcp.Config, count, size int) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	var s *bcp.Session
	replies := make(chan []byte, count)
	iface := bcp.Interface{
		Output:       func(slice []byte) error { return writeFramed(conn, slice) },
		DataListener: func(msg []byte) { replies <- msg },
	}

	s, err = bcp.Create(cfg, iface, "client", nil)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer s.Destroy()

	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()
	go func() {
		if err := pumpInput(pumpCtx, conn, s); err != nil && pumpCtx.Err() == nil {
			logging.Error("input pump exited", "error", err)
		}
	}()

	opened := make(chan handshake.OpenStatus, 1)
	if err := s.Open(2000, func(st handshake.OpenStatus) { opened <- st }); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	select {
	case st := <-opened:
		if st != handshake.OpenOK {
			return fmt.Errorf("handshake failed: %v", st)
		}
	case <-time.After(5 * time.Second):
		return fmt.Errorf("handshake never completed")
	}
	logging.Info("session open", "tag", "client")

	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}

	for i := 0; i < count; i++ {
		start := time.Now()
		if err := s.Send(payload); err != nil {
			return fmt.Errorf("send %d: %w", i, err)
		}
		select {
		case <-replies:
			logging.Info("round trip", "seq", i, "bytes", size, "latency", time.Since(start))
		case <-time.After(5 * time.Second):
			return fmt.Errorf("reply %d never arrived", i)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	snap := s.MetricsSnapshot()
	logging.Info("done", "retransmits", snap.Retransmits, "protocol_drops", snap.ProtocolDrops)
	return nil
}

// pumpInput reads length-prefixed slices off conn and feeds them to the
// session until ctx is done or the connection closes.
func pumpInput(ctx context.Context, conn net.Conn, s *bcp.Session) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		slice, err := readFramed(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := s.Input(slice); err != nil {
			logging.Warn("input rejected", "error", err)
		}
	}
}

func writeFramed(conn net.Conn, slice []byte) error {
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(slice)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := conn.Write(slice)
	return err
}

func readFramed(conn net.Conn) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(hdr[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
