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

// Package sockopt provides cross-platform ways to interact with socket options.
package sockopt

import (
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// defaultHopLimit is assumed when the OS reports a zero hop limit.
const defaultHopLimit = 64

// HasHopLimit enables manipulation of the hop limit option.
type HasHopLimit interface {
	// HopLimit returns the hop limit field value for outgoing packets.
	HopLimit() (int, error)
	// SetHopLimit sets the hop limit field value for future outgoing packets.
	SetHopLimit(hoplim int) error
}

// HasNoDelay enables reading and writing of the TCP_NODELAY option.
type HasNoDelay interface {
	// NoDelay returns whether Nagle's algorithm is disabled.
	NoDelay() (bool, error)
	// SetNoDelay disables (true) or enables (false) Nagle's algorithm.
	SetNoDelay(noDelay bool) error
}

// HasSendOOB enables sending TCP urgent (out-of-band) data.
type HasSendOOB interface {
	// SendOOB sends data with the MSG_OOB flag; the last byte becomes the
	// urgent byte.
	SendOOB(data []byte) error
}

// TCPOptions represents the socket options the desync phase manipulates on
// an upstream TCP connection.
type TCPOptions interface {
	HasHopLimit
	HasNoDelay
	HasSendOOB
}

// hopLimitOption implements HasHopLimit.
type hopLimitOption struct {
	hopLimit    func() (int, error)
	setHopLimit func(hoplim int) error
}

func (o *hopLimitOption) HopLimit() (int, error) {
	hoplim, err := o.hopLimit()
	if err != nil {
		return 0, fmt.Errorf("failed to read hop limit: %w", err)
	}
	if hoplim == 0 {
		hoplim = defaultHopLimit
	}
	return hoplim, nil
}

func (o *hopLimitOption) SetHopLimit(hoplim int) error {
	if err := o.setHopLimit(hoplim); err != nil {
		return fmt.Errorf("failed to change hop limit: %w", err)
	}
	return nil
}

var _ HasHopLimit = (*hopLimitOption)(nil)

// newHopLimit creates a hopLimitOption from a [net.Conn]. Works for both TCP or UDP.
func newHopLimit(conn net.Conn) (*hopLimitOption, error) {
	addr, err := netip.ParseAddrPort(conn.RemoteAddr().String())
	if err != nil {
		return nil, err
	}
	opt := &hopLimitOption{}
	switch {
	case addr.Addr().Is4() || addr.Addr().Is4In6():
		ipConn := ipv4.NewConn(conn)
		opt.hopLimit = ipConn.TTL
		opt.setHopLimit = ipConn.SetTTL
	case addr.Addr().Is6():
		ipConn := ipv6.NewConn(conn)
		opt.hopLimit = ipConn.HopLimit
		opt.setHopLimit = ipConn.SetHopLimit
	default:
		return nil, fmt.Errorf("address is not IPv4 or IPv6 (%v)", addr.Addr().String())
	}
	return opt, nil
}

type tcpOptions struct {
	hopLimitOption
	conn *net.TCPConn
}

var _ TCPOptions = (*tcpOptions)(nil)

func (o *tcpOptions) NoDelay() (bool, error) {
	rawConn, err := o.conn.SyscallConn()
	if err != nil {
		return false, fmt.Errorf("failed to get raw conn: %w", err)
	}
	var noDelay bool
	var optErr error
	if err := rawConn.Control(func(fd uintptr) {
		noDelay, optErr = getNoDelay(fd)
	}); err != nil {
		return false, fmt.Errorf("failed to control socket: %w", err)
	}
	if optErr != nil {
		return false, fmt.Errorf("getsockopt IPPROTO_TCP/TCP_NODELAY error: %w", optErr)
	}
	return noDelay, nil
}

func (o *tcpOptions) SetNoDelay(noDelay bool) error {
	return o.conn.SetNoDelay(noDelay)
}

func (o *tcpOptions) SendOOB(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	rawConn, err := o.conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to get raw conn: %w", err)
	}
	var sendErr error
	if err := rawConn.Control(func(fd uintptr) {
		sendErr = sendOOB(fd, data)
	}); err != nil {
		return fmt.Errorf("failed to control socket: %w", err)
	}
	if sendErr != nil {
		return fmt.Errorf("failed to send out-of-band data: %w", sendErr)
	}
	return nil
}

// NewTCPOptions creates a [TCPOptions] for the given [net.TCPConn].
func NewTCPOptions(conn *net.TCPConn) (TCPOptions, error) {
	hopLimit, err := newHopLimit(conn)
	if err != nil {
		return nil, err
	}
	return &tcpOptions{hopLimitOption: *hopLimit, conn: conn}, nil
}
