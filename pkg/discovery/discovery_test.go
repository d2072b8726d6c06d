package discovery

import (
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
)

func serviceEntry(instance string, port int, text []string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  ServiceType,
			Domain:   Domain,
		},
		HostName: instance + ".local.",
		Port:     port,
		AddrIPv4: []net.IP{net.ParseIP("192.168.1.10")},
		Text:     text,
	}
}

func TestEntryToEndpoint(t *testing.T) {
	t.Run("Complete", func(t *testing.T) {
		entry := serviceEntry("hub", 7420, []string{"sid=hub-1", "pv=1"})

		ep := entryToEndpoint(entry)
		if ep == nil {
			t.Fatal("entryToEndpoint() = nil")
		}
		if ep.ServiceID != "hub-1" {
			t.Errorf("ServiceID = %q, want %q", ep.ServiceID, "hub-1")
		}
		if ep.ProtocolVersion != 1 {
			t.Errorf("ProtocolVersion = %d, want 1", ep.ProtocolVersion)
		}
		if ep.Port != 7420 {
			t.Errorf("Port = %d, want 7420", ep.Port)
		}
		if len(ep.Addresses) != 1 || ep.Addresses[0] != "192.168.1.10" {
			t.Errorf("Addresses = %v, want [192.168.1.10]", ep.Addresses)
		}
	})

	t.Run("MissingServiceID", func(t *testing.T) {
		entry := serviceEntry("stranger", 7420, []string{"pv=1"})
		if ep := entryToEndpoint(entry); ep != nil {
			t.Errorf("entryToEndpoint() = %+v, want nil for foreign service", ep)
		}
	})

	t.Run("MalformedTXT", func(t *testing.T) {
		entry := serviceEntry("hub", 7420, []string{"sid=hub-1", "garbage", "pv=soon"})
		ep := entryToEndpoint(entry)
		if ep == nil {
			t.Fatal("entryToEndpoint() = nil")
		}
		if ep.ProtocolVersion != 0 {
			t.Errorf("ProtocolVersion = %d, want 0 for unparsable value", ep.ProtocolVersion)
		}
	})
}

func TestEndpointAddress(t *testing.T) {
	ep := &Endpoint{Host: "hub.local.", Addresses: []string{"192.168.1.10"}, Port: 7420}
	if got := ep.Address(); got != "192.168.1.10:7420" {
		t.Errorf("Address() = %q, want resolved IP preferred", got)
	}

	ep = &Endpoint{Host: "hub.local.", Port: 7420}
	if got := ep.Address(); got != "hub.local.:7420" {
		t.Errorf("Address() = %q, want hostname fallback", got)
	}
}

func TestMergeAddresses(t *testing.T) {
	merged := mergeAddresses([]string{"a", "b"}, []string{"b", "c"})
	want := []string{"a", "b", "c"}
	if len(merged) != len(want) {
		t.Fatalf("mergeAddresses() = %v, want %v", merged, want)
	}
	for i := range want {
		if merged[i] != want[i] {
			t.Fatalf("mergeAddresses() = %v, want %v", merged, want)
		}
	}
}
