// Copyright 2024 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package proxy runs the local SOCKS5 server and drives the desync engine on
// the first payload of every CONNECT tunnel.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/things-go/go-socks5"
	"github.com/things-go/go-socks5/statute"

	"github.com/Jigsaw-Code/outline-desync/desync"
	"github.com/Jigsaw-Code/outline-desync/sniff"
	"github.com/Jigsaw-Code/outline-desync/sockopt"
	"github.com/Jigsaw-Code/outline-desync/transport"
)

// firstPayloadSize bounds the single first read from the client. It
// comfortably exceeds a typical ClientHello and a realistic HTTP header
// block; anything the client sends beyond one read is forwarded verbatim by
// the copy loop.
const firstPayloadSize = 9016

// Server is a SOCKS5 server that desyncs the first payload of each tunnel.
// Only CONNECT is honored; BIND and UDP ASSOCIATE are rejected.
type Server struct {
	params *desync.Params
	dialer transport.StreamDialer
	socks  *socks5.Server
}

// NewServer creates a [Server] sharing the immutable params across all
// connections. dialer establishes the upstream connections; pass nil for a
// direct [transport.TCPDialer]. Hostnames are resolved locally.
func NewServer(params *desync.Params, dialer transport.StreamDialer) *Server {
	if dialer == nil {
		dialer = &transport.TCPDialer{}
	}
	s := &Server{params: params, dialer: dialer}
	s.socks = socks5.NewServer(
		socks5.WithConnectHandle(s.handleConnect),
		socks5.WithBindHandle(rejectCommand),
		socks5.WithAssociateHandle(rejectCommand),
		socks5.WithLogger(slogLogger{}),
	)
	return s
}

// ListenAndServe listens on addr and serves SOCKS5 clients until the
// listener fails.
func (s *Server) ListenAndServe(addr string) error {
	return s.socks.ListenAndServe("tcp", addr)
}

// Serve accepts SOCKS5 clients from ln, spawning one goroutine per
// connection. It returns when the listener fails or is closed.
func (s *Server) Serve(ln net.Listener) error {
	return s.socks.Serve(ln)
}

// rejectCommand replies COMMAND_NOT_SUPPORTED and lets the library close the
// connection.
func rejectCommand(_ context.Context, writer io.Writer, request *socks5.Request) error {
	if err := socks5.SendReply(writer, statute.RepCommandNotSupported, nil); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

func (s *Server) handleConnect(ctx context.Context, writer io.Writer, request *socks5.Request) error {
	target, err := s.dialer.DialStream(ctx, request.DestAddr.String())
	if err != nil {
		if replyErr := socks5.SendReply(writer, statute.RepHostUnreachable, nil); replyErr != nil {
			return fmt.Errorf("failed to send reply: %w", replyErr)
		}
		return fmt.Errorf("failed to connect to %v: %w", request.DestAddr, err)
	}
	defer target.Close()

	// The bound address is intentionally unspecified.
	if err := socks5.SendReply(writer, statute.RepSuccess, &net.TCPAddr{IP: net.IPv4zero, Port: 0}); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}

	if err := s.sendFirstPayload(request.Reader, target); err != nil {
		return fmt.Errorf("desync of first payload to %v failed: %w", request.DestAddr, err)
	}
	return relay(writer, request.Reader, target)
}

// sendFirstPayload reads the client's first payload in a single read of at
// most [firstPayloadSize] bytes, classifies it, and either desyncs it or
// forwards it verbatim. TCP_NODELAY is forced on for the desync phase and
// restored before returning.
func (s *Server) sendFirstPayload(client io.Reader, target transport.StreamConn) error {
	buf := make([]byte, firstPayloadSize)
	n, err := client.Read(buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	payload := buf[:n]

	tcpConn, ok := target.(*net.TCPConn)
	if !ok {
		// Socket options need a real TCP socket; forward untouched.
		_, err := target.Write(payload)
		return err
	}
	opts, err := sockopt.NewTCPOptions(tcpConn)
	if err != nil {
		return err
	}
	noDelay, err := opts.NoDelay()
	if err != nil {
		return err
	}
	if err := opts.SetNoDelay(true); err != nil {
		return err
	}

	tlsAnchor, isTLS := sniff.IsTLSClientHello(payload)
	httpAnchor, isHTTP := sniff.IsHTTPRequest(payload)
	switch {
	case isTLS:
		if sni, found := sniff.ServerName(payload); found {
			slog.Debug("Desyncing TLS ClientHello", "sni", sni, "anchor", tlsAnchor)
		}
		err = desync.NewEmitter(tcpConn, opts, s.params).Send(payload, true)
	case isHTTP:
		slog.Debug("Desyncing HTTP request", "anchor", httpAnchor)
		err = desync.NewEmitter(tcpConn, opts, s.params).Send(payload, false)
	default:
		_, err = tcpConn.Write(payload)
	}
	if err != nil {
		return err
	}
	return opts.SetNoDelay(noDelay)
}

type closeWriter interface {
	CloseWrite() error
}

// relay copies bytes between the client and the target until either
// direction closes or fails.
func relay(client io.Writer, clientReader io.Reader, target transport.StreamConn) error {
	errCh := make(chan error, 2)
	go func() {
		_, err := io.Copy(target, clientReader)
		target.CloseWrite()
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(client, target)
		if cw, ok := client.(closeWriter); ok {
			cw.CloseWrite()
		}
		errCh <- err
	}()
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}

// slogLogger adapts the process logger to the go-socks5 logger interface.
type slogLogger struct{}

func (slogLogger) Errorf(format string, args ...interface{}) {
	slog.Error(fmt.Sprintf(format, args...))
}
