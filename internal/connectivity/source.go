package connectivity

import (
	"context"
	"log/slog"
	"net"
	"runtime"
	"strings"
	"time"
)

// Transport is the kind of link a network runs over.
type Transport string

const (
	TransportWifi     Transport = "wifi"
	TransportEthernet Transport = "ethernet"
	TransportCellular Transport = "cellular"
	TransportOther    Transport = "other"
)

// Event reports that one network became available or went away.
type Event struct {
	Network   string
	Transport Transport
	Available bool
}

// Source emits reachability events until ctx is done, then closes the channel.
type Source interface {
	Events(ctx context.Context) <-chan Event
}

// Interface is the subset of an OS network interface the scanner looks at.
type Interface struct {
	Name    string
	Flags   net.Flags
	HasAddr bool
}

// InterfaceScanner polls the host's interfaces and reports changes.
type InterfaceScanner struct {
	interval time.Duration
	list     func() ([]Interface, error)
	logger   *slog.Logger
}

// NewInterfaceScanner polls net.Interfaces every interval.
func NewInterfaceScanner(interval time.Duration, logger *slog.Logger) *InterfaceScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &InterfaceScanner{interval: interval, list: systemInterfaces, logger: logger}
}

func systemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		out = append(out, Interface{
			Name:    iface.Name,
			Flags:   iface.Flags,
			HasAddr: err == nil && len(addrs) > 0,
		})
	}
	return out, nil
}

// Scan returns one available event per usable interface.
func (s *InterfaceScanner) Scan() ([]Event, error) {
	ifaces, err := s.list()
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 || !iface.HasAddr {
			continue
		}
		events = append(events, Event{Network: iface.Name, Transport: Classify(iface.Name), Available: true})
	}
	return events, nil
}

// Events emits the initial set of networks and then every change seen on a
// later scan.
func (s *InterfaceScanner) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		known := make(map[string]Transport)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			current, err := s.Scan()
			if err != nil {
				s.logger.Warn("Failed to scan network interfaces", "error", err)
			} else {
				seen := make(map[string]bool, len(current))
				for _, ev := range current {
					seen[ev.Network] = true
					if _, ok := known[ev.Network]; ok {
						continue
					}
					known[ev.Network] = ev.Transport
					if !send(ctx, out, ev) {
						return
					}
				}
				for name, transport := range known {
					if seen[name] {
						continue
					}
					delete(known, name)
					if !send(ctx, out, Event{Network: name, Transport: transport}) {
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Classify guesses the transport from an interface name using the naming
// scheme of the running OS.
func Classify(name string) Transport {
	return classify(runtime.GOOS, name)
}

// classify maps Linux predictable names (enp, eno, ens, enx) and eth* to
// ethernet. On macOS en* is taken to be wifi, which holds for laptops where
// en0 is the AirPort adapter; a wired en0 is reported as wifi.
func classify(goos, name string) Transport {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "wl"), strings.HasPrefix(n, "wifi"):
		return TransportWifi
	case goos == "darwin" && strings.HasPrefix(n, "en"):
		return TransportWifi
	case strings.HasPrefix(n, "eth"), strings.HasPrefix(n, "enp"), strings.HasPrefix(n, "eno"),
		strings.HasPrefix(n, "ens"), strings.HasPrefix(n, "enx"):
		return TransportEthernet
	case strings.HasPrefix(n, "wwan"), strings.HasPrefix(n, "rmnet"),
		strings.HasPrefix(n, "ccmni"), strings.HasPrefix(n, "ppp"):
		return TransportCellular
	default:
		return TransportOther
	}
}
