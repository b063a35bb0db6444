package sr830

import (
	"fmt"
	"time"

	serial "github.com/tarm/goserial"
)

const (
	// DefaultBaudRate matches the SR830 factory RS232 setting.
	DefaultBaudRate = 9600

	// DefaultReadTimeout bounds a single serial read. The instrument answers
	// queries well within one second; a silent port means trouble upstream.
	DefaultReadTimeout = time.Second
)

// Dial opens the serial port the instrument is attached to and wraps it in
// an SR830 link. Baud and readTimeout fall back to the defaults when zero.
func Dial(port string, baud int, readTimeout time.Duration, options ...func(*Conn)) (*Conn, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	rwc, err := serial.OpenPort(&serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", port, err)
	}

	return New(rwc, options...), nil
}
