// Package discovery finds broadcast hubs on the local network over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/betamos/zeroconf"
)

const (
	ServiceType = "_btbmesh._udp"
	Domain      = "local."
	DefaultPort = 6121
)

// ErrNoHub is returned by FindHub when the context ends before a hub answers.
var ErrNoHub = errors.New("no hub found")

// Hub represents a hub discovered on the local network
type Hub struct {
	Name string
	Addr string
	Port int
}

// Announcer publishes a hub until closed
type Announcer struct {
	client *zeroconf.Client
}

// Announce publishes a hub named name listening on port
func Announce(name string, port int) (*Announcer, error) {
	if port <= 0 || port > 65535 {
		port = DefaultPort
	}
	self := zeroconf.NewService(zeroconf.NewType(ServiceType), name, uint16(port))
	client, err := zeroconf.New().Publish(self).Open()
	if err != nil {
		return nil, fmt.Errorf("zeroconf: %w", err)
	}
	return &Announcer{client: client}, nil
}

// Close withdraws the announcement
func (a *Announcer) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// FindHub browses for hubs and returns the first one that answers.
func FindHub(ctx context.Context) (Hub, error) {
	found := make(chan Hub, 1)
	client, err := zeroconf.New().
		Browse(func(e zeroconf.Event) {
			if e.Op != zeroconf.OpAdded {
				return
			}
			h, ok := hubFromEvent(e)
			if !ok {
				return
			}
			select {
			case found <- h:
			default:
			}
		}, zeroconf.NewType(ServiceType)).
		Open()
	if err != nil {
		return Hub{}, fmt.Errorf("zeroconf: %w", err)
	}
	defer client.Close()

	select {
	case h := <-found:
		return h, nil
	case <-ctx.Done():
		return Hub{}, ErrNoHub
	}
}

func hubFromEvent(e zeroconf.Event) (Hub, bool) {
	var addrs []string
	for _, a := range e.Addrs {
		if a.IsValid() {
			addrs = append(addrs, net.JoinHostPort(a.String(), strconv.Itoa(int(e.Port))))
		}
	}
	if len(addrs) == 0 {
		return Hub{}, false
	}
	return Hub{Name: e.Name, Addr: preferIPv4(addrs), Port: int(e.Port)}, true
}

// preferIPv4 picks the first IPv4 address, falling back to the first one.
func preferIPv4(addrs []string) string {
	for _, a := range addrs {
		if !strings.HasPrefix(a, "[") {
			return a
		}
	}
	return addrs[0]
}

// ParseAddr splits "host:port"
func ParseAddr(s string) (host string, port int, err error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
