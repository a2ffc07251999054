package net

import (
	"fmt"
	"net"
)

// EphemeralListenAddr reserves an ephemeral localhost TCP port and returns it
// as a host:port listen address plus the bare port. The port is released
// before returning, so a racing process could grab it; acceptable for tests.
func EphemeralListenAddr() (string, int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return "", 0, fmt.Errorf("resolving 127.0.0.1:0: %w", err)
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return "", 0, fmt.Errorf("listening to acquire port: %w", err)
	}
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("127.0.0.1:%d", port), port, nil
}
