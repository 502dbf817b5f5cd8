package net

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service hubs advertise.
const ServiceType = "_whiteboard._tcp"

const defaultBrowseTimeout = time.Second

// Advertise announces a hub listening on port until the returned server is
// shut down.
func Advertise(port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("mdns: hostname: %w", err)
	}

	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, []string{"LocalWhiteboard"})
	if err != nil {
		return nil, fmt.Errorf("mdns: service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("mdns: server: %w", err)
	}
	return server, nil
}

// Browse looks for hubs on the local network and returns their host:port
// addresses. It waits until ctx's deadline, or one second without one.
func Browse(ctx context.Context) ([]string, error) {
	timeout := defaultBrowseTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return nil, ctx.Err()
	}

	entries := make(chan *mdns.ServiceEntry, 8)
	found := make(chan []string, 1)
	go func() {
		var addrs []string
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			addrs = append(addrs, fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port))
		}
		found <- addrs
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	err := mdns.Query(params)
	close(entries)
	addrs := <-found
	if err != nil {
		return addrs, fmt.Errorf("mdns: browse: %w", err)
	}
	return addrs, nil
}
