package transport

import (
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorCategory groups I/O failures for logs and metrics.
type ErrorCategory int

const (
	// ErrCategoryTimeout indicates a read or write deadline expired
	ErrCategoryTimeout ErrorCategory = iota
	// ErrCategoryClosed indicates use of a socket or port after close
	ErrCategoryClosed
	// ErrCategoryRefused indicates the board refused the UDP connection (ICMP port unreachable)
	ErrCategoryRefused
	// ErrCategoryDevice indicates the serial device went away or failed (unplugged, I/O error)
	ErrCategoryDevice
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns the category's label as used in logs and metrics
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryClosed:
		return "closed"
	case ErrCategoryRefused:
		return "refused"
	case ErrCategoryDevice:
		return "device"
	default:
		return "unknown"
	}
}

// ClassifyIOError sorts a read or write error into a category. ICMP port
// unreachable surfaces on a UDP socket as ECONNREFUSED on the next call.
func ClassifyIOError(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryUnknown
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrCategoryTimeout
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
		return ErrCategoryClosed
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrCategoryRefused
	}
	if errors.Is(err, syscall.ENXIO) || errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.EIO) ||
		strings.Contains(strings.ToLower(err.Error()), "port has been closed") {
		return ErrCategoryDevice
	}
	return ErrCategoryUnknown
}
