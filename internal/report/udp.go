package report

import (
	"fmt"
	"net"
	"time"
)

// UDPReporter sends each reading as a single datagram to a fixed address.
type UDPReporter struct {
	addr    string
	timeout time.Duration
	now     func() time.Time
	stats   Stats
}

// NewUDPReporter creates a reporter for host:port.
func NewUDPReporter(addr string, timeout time.Duration) *UDPReporter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &UDPReporter{addr: addr, timeout: timeout, now: time.Now}
}

// Report dials, writes one datagram and closes the socket.
func (u *UDPReporter) Report(name string, value float64) error {
	err := u.send(FormatDatagram(name, value))
	if err != nil {
		u.stats.Failed++
		u.stats.LastError = err.Error()
		return err
	}
	u.stats.Sent++
	u.stats.LastSent = u.now()
	return nil
}

func (u *UDPReporter) send(payload []byte) error {
	conn, err := net.DialTimeout("udp", u.addr, u.timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.addr, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(u.now().Add(u.timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write to %s: %w", u.addr, err)
	}
	return nil
}

// Stats returns delivery counters.
func (u *UDPReporter) Stats() Stats { return u.stats }

// Addr returns the collector address.
func (u *UDPReporter) Addr() string { return u.addr }
