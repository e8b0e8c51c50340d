package peers

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/mosaicnetworks/sharechain/src/wire"
)

// Addr is the key of an address book entry.
type Addr struct {
	Host string
	Port uint16
}

// ParseAddr parses "host:port".
func ParseAddr(s string) (Addr, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Addr{}, err
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Addr{}, fmt.Errorf("bad port in %q: %w", s, err)
	}
	return Addr{Host: host, Port: uint16(p)}, nil
}

// AddrFromNetAddress converts a wire address record.
func AddrFromNetAddress(na wire.NetAddress) Addr {
	ip := na.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return Addr{Host: ip.String(), Port: na.Port}
}

func (a Addr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// IP returns the host as an IP, nil for host names.
func (a Addr) IP() net.IP {
	return net.ParseIP(a.Host)
}

// NetAddress converts the address to a wire record. Host names that are not
// IP literals become the unspecified address.
func (a Addr) NetAddress(services uint64) wire.NetAddress {
	ip := a.IP()
	if ip == nil {
		ip = net.IPv6unspecified
	}
	return wire.NetAddress{Services: services, IP: ip, Port: a.Port}
}

// Entry is what the book knows about an address.
type Entry struct {
	Addr      Addr
	Services  uint64
	FirstSeen time.Time
	LastSeen  time.Time

	// Failures counts consecutive failed dials; a success resets it.
	Failures    int
	LastAttempt time.Time
}
