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

// outline-desync is a local SOCKS5 proxy that perturbs the first payload of
// each CONNECT tunnel to confuse DPI middleboxes.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/Jigsaw-Code/outline-desync/proxy"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags...]\n", path.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	ipFlag := flag.String("ip", "0.0.0.0", "Address to bind the SOCKS5 listener to")
	portFlag := flag.String("port", "1080", "Port to bind the SOCKS5 listener to")
	disorderFlag := flag.Uint("disorder", 0, "Send the payload up to this byte offset with TTL 1, forcing a retransmission")
	splitFlag := flag.Uint("split", 0, "Split the payload into separate segments at this byte offset")
	oobFlag := flag.Uint("oob", 0, "Send the payload up to this byte offset as TCP out-of-band data")
	tlsrecFlag := flag.Uint("tlsrec", 0, "Split the TLS ClientHello record at this payload offset")
	configFlag := flag.String("config", "", "Optional YAML config file; explicit flags take precedence")
	verboseFlag := flag.Bool("v", false, "Enable debug output")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verboseFlag {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(
		os.Stderr,
		&tint.Options{NoColor: !term.IsTerminal(int(os.Stderr.Fd())), Level: logLevel},
	)))

	cfg := defaultConfig()
	if *configFlag != "" {
		if err := loadConfigFile(*configFlag, cfg); err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
	}
	// Explicit flags override the file. Perturbation flags count as set only
	// when given on the command line, so 0 stays distinguishable from absent.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ip":
			cfg.IP = *ipFlag
		case "port":
			cfg.Port = *portFlag
		case "disorder":
			cfg.Disorder = disorderFlag
		case "split":
			cfg.Split = splitFlag
		case "oob":
			cfg.OOB = oobFlag
		case "tlsrec":
			cfg.TLSRec = tlsrecFlag
		}
	})

	params := cfg.params()
	server := proxy.NewServer(params, nil)

	addr := net.JoinHostPort(cfg.IP, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("Failed to bind", "address", addr, "error", err)
		os.Exit(1)
	}
	slog.Info("SOCKS5 proxy listening", "address", listener.Addr(), "desync", params)

	// Interrupt closes the listener; in-flight tunnels keep their sockets
	// until either side closes.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		listener.Close()
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Error("Proxy terminated", "error", err)
		os.Exit(1)
	}
}
