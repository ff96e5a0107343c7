//go:build !linux

package transport

import "syscall"

// Socket buffer tuning is only applied on linux.
func socketControl(int) func(network, address string, c syscall.RawConn) error {
	return nil
}
