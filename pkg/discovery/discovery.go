package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// ServiceType is the mDNS service type for corelink services.
	ServiceType = "_corelink._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default corelink service port.
	DefaultPort = 7420

	// DefaultBrowseTimeout bounds a Browse call when the caller's
	// context carries no deadline.
	DefaultBrowseTimeout = 5 * time.Second
)

// TXT record keys.
const (
	txtKeyServiceID = "sid"
	txtKeyVersion   = "pv"
)

// Endpoint is one discovered corelink service.
type Endpoint struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the advertised hostname.
	Host string

	// Addresses are the resolved IP addresses.
	Addresses []string

	// Port is the service port.
	Port int

	// ServiceID identifies the service, from the TXT record.
	ServiceID string

	// ProtocolVersion is the protocol version the service speaks.
	ProtocolVersion int
}

// Address returns a dialable host:port, preferring a resolved IP over
// the hostname.
func (e *Endpoint) Address() string {
	host := e.Host
	if len(e.Addresses) > 0 {
		host = e.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(e.Port))
}

// Announce advertises a corelink service until Shutdown. Used by the
// service side and by tests.
type Announce struct {
	server *zeroconf.Server
}

// NewAnnounce registers the service in mDNS.
func NewAnnounce(instanceName, serviceID string, port int, protocolVersion int) (*Announce, error) {
	if port == 0 {
		port = DefaultPort
	}
	txt := []string{
		txtKeyServiceID + "=" + serviceID,
		txtKeyVersion + "=" + strconv.Itoa(protocolVersion),
	}

	server, err := zeroconf.Register(instanceName, ServiceType, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}
	return &Announce{server: server}, nil
}

// Shutdown stops advertising.
func (a *Announce) Shutdown() {
	a.server.Shutdown()
}

// Browse searches for corelink services until the context expires and
// returns everything found. The context's deadline bounds the search;
// without one DefaultBrowseTimeout applies.
func Browse(ctx context.Context) ([]*Endpoint, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultBrowseTimeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	collected := make(chan []*Endpoint, 1)
	go func(entries, removed <-chan *zeroconf.ServiceEntry) {
		byInstance := make(map[string]*Endpoint)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					entries = nil
					continue
				}
				ep := entryToEndpoint(entry)
				if ep == nil {
					continue
				}
				if existing, found := byInstance[ep.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, ep.Addresses)
					continue
				}
				byInstance[ep.InstanceName] = ep

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				delete(byInstance, entry.Instance)

			case <-ctx.Done():
				out := make([]*Endpoint, 0, len(byInstance))
				for _, ep := range byInstance {
					out = append(out, ep)
				}
				collected <- out
				return
			}
		}
	}(entries, removed)

	if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed); err != nil {
		return nil, fmt.Errorf("failed to browse: %w", err)
	}

	return <-collected, nil
}

// First returns the first discovered endpoint, or an error if none
// turned up before the context expired.
func First(ctx context.Context) (*Endpoint, error) {
	endpoints, err := Browse(ctx)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no %s services found", ServiceType)
	}
	return endpoints[0], nil
}

// entryToEndpoint converts a zeroconf entry, dropping entries without
// a service ID.
func entryToEndpoint(entry *zeroconf.ServiceEntry) *Endpoint {
	ep := &Endpoint{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         entry.Port,
	}
	for _, ip := range entry.AddrIPv4 {
		ep.Addresses = append(ep.Addresses, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		ep.Addresses = append(ep.Addresses, ip.String())
	}

	for _, record := range entry.Text {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			continue
		}
		switch key {
		case txtKeyServiceID:
			ep.ServiceID = value
		case txtKeyVersion:
			if v, err := strconv.Atoi(value); err == nil {
				ep.ProtocolVersion = v
			}
		}
	}

	if ep.ServiceID == "" {
		return nil
	}
	return ep
}

// mergeAddresses combines address lists without duplicates.
func mergeAddresses(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range incoming {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}
