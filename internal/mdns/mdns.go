// Package mdns advertises and discovers pulse generator control APIs over
// DNS-SD.
package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_pulsegen._tcp"
	Domain  = "local."
)

// Host represents a discovered pulse generator.
type Host struct {
	Instance  string // Advertised name: "pulsegen on bench"
	Hostname  string // DNS hostname: "bench.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// URLs returns the HTTP base URL for every address of h.
func (h Host) URLs() []string {
	out := make([]string, 0, len(h.Addresses))
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			out = append(out, fmt.Sprintf("http://%s:%d", ip, h.Port))
		} else {
			out = append(out, fmt.Sprintf("http://[%s]:%d", ip, h.Port))
		}
	}
	return out
}

// Advertise registers instance on port until ctx is done.
func Advertise(ctx context.Context, instance string, port int, txt []string) error {
	server, err := zeroconf.Register(instance, Service, Domain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()
	return nil
}

// Discover browses for pulse generators until timeout elapses or ctx is done.
// Results are deduplicated by hostname and port and sorted by instance name.
func Discover(ctx context.Context, timeout time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	resultMap := make(map[string]Host)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}
				addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
				addrs = append(addrs, e.AddrIPv4...)
				addrs = append(addrs, e.AddrIPv6...)

				key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
				resultMap[key] = Host{
					Instance:  cleanInstance(e.Instance),
					Hostname:  e.HostName,
					Addresses: addrs,
					Port:      e.Port,
					TXT:       append([]string{}, e.Text...),
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}

	<-done

	out := make([]Host, 0, len(resultMap))
	for _, h := range resultMap {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

// PortFromAddr extracts the port of a listen address such as ":8080".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("listen address %q has no usable port", addr)
	}
	return port, nil
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
