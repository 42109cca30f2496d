package utils

import (
	"fmt"
	"net"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
)

// FindAnyFreePort returns a random port that is not in use.
// It does so by claiming a random open port, then closing it.
func FindAnyFreePort(port *int) error {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return err
	}

	tmpListener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return err
	}

	*port = tmpListener.Addr().(*net.TCPAddr).Port
	return tmpListener.Close()
}

// ExpectPortToBeFree returns an error if something is already listening on port.
func ExpectPortToBeFree(port int) error {
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("localhost:%v", port))
	if err != nil {
		return err
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "port %v is not free", port)
	}
	return listener.Close()
}

// WaitForPort polls addr until it accepts a connection or attempts run out.
func WaitForPort(addr string, attempts uint, delay time.Duration) error {
	return retry.Do(
		func() error {
			conn, err := net.DialTimeout("tcp", addr, delay)
			if err != nil {
				return err
			}
			return conn.Close()
		},
		retry.Attempts(attempts),
		retry.Delay(delay),
	)
}
