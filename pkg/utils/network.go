// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// minThroughputBytesPerSecond is the slowest client transfer rate tolerated
// before a connection deadline fires.
const minThroughputBytesPerSecond = 4000

// Listener wraps a net.Listener so accepted connections get deadlines that
// grow with the amount of data already transferred. Large part uploads from
// slow clients keep their connection as long as they sustain the minimum rate.
type Listener struct {
	net.Listener
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &Conn{
		Conn:         c,
		ReadTimeout:  l.ReadTimeout,
		WriteTimeout: l.WriteTimeout,
	}, nil
}

// Conn sets a scaled deadline before every read and write.
type Conn struct {
	net.Conn
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	bytesRead    int64
	bytesWritten int64
}

// scaledTimeout returns timeout multiplied by how many minimum-rate windows
// have already been transferred, plus one.
func scaledTimeout(timeout time.Duration, transferred int64) time.Duration {
	perWindow := int64(float64(minThroughputBytesPerSecond) * timeout.Seconds())
	if perWindow <= 0 {
		perWindow = 1
	}
	return timeout * time.Duration(transferred/perWindow+1)
}

func (c *Conn) Read(b []byte) (int, error) {
	if c.ReadTimeout != 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(scaledTimeout(c.ReadTimeout, c.bytesRead))); err != nil {
			return 0, err
		}
	}
	n, err := c.Conn.Read(b)
	c.bytesRead += int64(n)
	return n, err
}

func (c *Conn) Write(b []byte) (int, error) {
	if c.WriteTimeout != 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(scaledTimeout(c.WriteTimeout, c.bytesWritten))); err != nil {
			return 0, err
		}
	}
	n, err := c.Conn.Write(b)
	c.bytesWritten += int64(n)
	return n, err
}

// NewListener listens on addr. A zero timeout disables deadlines.
func NewListener(addr string, timeout time.Duration) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{
		Listener:     listener,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}, nil
}

func JoinHostPort(host string, port int) string {
	portStr := strconv.Itoa(port)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host + ":" + portStr
	}
	return net.JoinHostPort(host, portStr)
}
