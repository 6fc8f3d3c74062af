//go:build !linux

package peer

import "syscall"

// controlReuseAddr is a no-op on every platform other than Linux: it sets no
// socket options beyond those the Go runtime applies itself.
func controlReuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}
