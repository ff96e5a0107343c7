package util

import (
	"net"
	"strconv"
)

// NetJoin formats host and port as a dialable address.
func NetJoin(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
