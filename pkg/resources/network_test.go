package resources

import (
	"context"
	"encoding/xml"
	"errors"
	"net"
	"testing"

	"github.com/withsecure/see-go/pkg/types"
)

func mustCIDR(t *testing.T, s string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		t.Fatalf("ParseCIDR(%q) error = %v", s, err)
	}
	return n
}

func TestSubnetsEnumeratesEveryChild(t *testing.T) {
	base := mustCIDR(t, "192.168.0.0/22")
	subnets, err := Subnets(base, 24)
	if err != nil {
		t.Fatalf("Subnets() error = %v", err)
	}
	if len(subnets) != 4 {
		t.Fatalf("len(subnets) = %d, want 4", len(subnets))
	}
	want := []string{"192.168.0.0/24", "192.168.1.0/24", "192.168.2.0/24", "192.168.3.0/24"}
	for i, w := range want {
		if subnets[i].String() != w {
			t.Errorf("subnets[%d] = %s, want %s", i, subnets[i], w)
		}
	}
}

func TestSubnetsRejectsPrefixOutsideBase(t *testing.T) {
	base := mustCIDR(t, "192.168.0.0/24")
	if _, err := Subnets(base, 16); err == nil {
		t.Fatal("expected error for a subnet prefix wider than the base network")
	}
}

func TestSubtractActiveRemovesOverlapping(t *testing.T) {
	candidates := []*net.IPNet{
		mustCIDR(t, "10.0.0.0/24"),
		mustCIDR(t, "10.0.1.0/24"),
		mustCIDR(t, "10.0.2.0/24"),
	}
	active := []*net.IPNet{mustCIDR(t, "10.0.1.0/24")}

	remaining := SubtractActive(candidates, active)
	if len(remaining) != 2 {
		t.Fatalf("len(remaining) = %d, want 2", len(remaining))
	}
	for _, r := range remaining {
		if r.String() == "10.0.1.0/24" {
			t.Fatal("active subnet was not subtracted")
		}
	}
}

func TestPickRandomReturnsExhaustedOnEmptyPool(t *testing.T) {
	_, err := PickRandom(nil)
	if !errors.Is(err, types.ErrAddressExhausted) {
		t.Fatalf("expected ErrAddressExhausted, got %v", err)
	}
}

func TestPickRandomReturnsAMemberOfThePool(t *testing.T) {
	pool := []*net.IPNet{mustCIDR(t, "10.0.0.0/24"), mustCIDR(t, "10.0.1.0/24")}
	picked, err := PickRandom(pool)
	if err != nil {
		t.Fatalf("PickRandom() error = %v", err)
	}
	if picked != pool[0] && picked != pool[1] {
		t.Fatalf("PickRandom() returned %v, not a pool member", picked)
	}
}

type fakeLister struct {
	active []*net.IPNet
	err    error
}

func (f fakeLister) ActiveNetworkAddresses(ctx context.Context) ([]*net.IPNet, error) {
	return f.active, f.err
}

func TestAddressLookupExhaustedWhenEveryCandidateIsActive(t *testing.T) {
	cfg := types.DynamicAddressConfig{IPv4: "192.168.0.0", Prefix: 24, SubnetPrefix: 24}
	lister := fakeLister{active: []*net.IPNet{mustCIDR(t, "192.168.0.0/24")}}

	_, err := AddressLookup(context.Background(), lister, cfg)
	if !errors.Is(err, types.ErrAddressExhausted) {
		t.Fatalf("expected ErrAddressExhausted, got %v", err)
	}
}

func TestAddressLookupReturnsUnusedCandidate(t *testing.T) {
	cfg := types.DynamicAddressConfig{IPv4: "192.168.0.0", Prefix: 22, SubnetPrefix: 24}
	lister := fakeLister{active: []*net.IPNet{mustCIDR(t, "192.168.0.0/24")}}

	addr, err := AddressLookup(context.Background(), lister, cfg)
	if err != nil {
		t.Fatalf("AddressLookup() error = %v", err)
	}
	if addr.String() == "192.168.0.0/24" {
		t.Fatal("AddressLookup() returned an already-active subnet")
	}
}

func TestGenerateNetworkRetriesOnCreateFailureThenSucceeds(t *testing.T) {
	cfg := types.NetworkConfig{
		DynamicAddress: &types.DynamicAddressConfig{IPv4: "192.168.0.0", Prefix: 22, SubnetPrefix: 24},
	}
	lister := fakeLister{}

	var attempts int
	create := func(xmlDoc string) error {
		attempts++
		if attempts < 2 {
			return errors.New("simulated collision defining network")
		}
		return nil
	}

	addr, err := GenerateNetwork(context.Background(), lister, cfg, "virbr-test", create)
	if err != nil {
		t.Fatalf("GenerateNetwork() error = %v", err)
	}
	if addr == nil {
		t.Fatal("GenerateNetwork() returned a nil address on success")
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestGenerateNetworkGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := types.NetworkConfig{
		DynamicAddress: &types.DynamicAddressConfig{IPv4: "192.168.0.0", Prefix: 22, SubnetPrefix: 24},
	}
	lister := fakeLister{}

	create := func(xmlDoc string) error { return errors.New("always fails") }

	_, err := GenerateNetwork(context.Background(), lister, cfg, "virbr-test", create)
	if !errors.Is(err, types.ErrAddressExhausted) {
		t.Fatalf("expected ErrAddressExhausted, got %v", err)
	}
}

func TestBridgeNameTruncatesToEightCharacters(t *testing.T) {
	name := BridgeName("abcdefghijklmnop")
	if name != "virbr-abcdefgh" {
		t.Fatalf("BridgeName() = %q, want %q", name, "virbr-abcdefgh")
	}
}

func TestBridgeNameShortIdentifierUnchanged(t *testing.T) {
	name := BridgeName("abc")
	if name != "virbr-abc" {
		t.Fatalf("BridgeName() = %q, want %q", name, "virbr-abc")
	}
}

func TestBuildNetworkXMLSetsBridgeAndIPBlock(t *testing.T) {
	subnet := mustCIDR(t, "10.1.2.0/24")
	doc, err := BuildNetworkXML(DefaultNetworkXML, "virbr-abc12345", subnet)
	if err != nil {
		t.Fatalf("BuildNetworkXML() error = %v", err)
	}

	ipnet, ok, err := ParseNetworkIPNet(doc)
	if err != nil {
		t.Fatalf("ParseNetworkIPNet() error = %v", err)
	}
	if !ok {
		t.Fatal("expected the rendered document to carry an <ip> block")
	}
	if ipnet.String() != "10.1.2.0/24" {
		t.Fatalf("parsed network = %s, want 10.1.2.0/24", ipnet)
	}
}

func TestBuildNetworkXMLRejectsPreexistingStaticAddress(t *testing.T) {
	withIP := `<network><ip address="10.0.0.1" netmask="255.255.255.0"/></network>`
	_, err := BuildNetworkXML(withIP, "virbr-abc12345", mustCIDR(t, "10.1.2.0/24"))
	if !errors.Is(err, types.ErrAddressConflict) {
		t.Fatalf("expected ErrAddressConflict, got %v", err)
	}
}

func TestAddressPlanDerivesGatewayAndDHCPRange(t *testing.T) {
	subnet := mustCIDR(t, "10.1.2.0/24")
	gateway, dhcpStart, dhcpEnd, netmask, err := addressPlan(subnet)
	if err != nil {
		t.Fatalf("addressPlan() error = %v", err)
	}
	if gateway.String() != "10.1.2.1" {
		t.Errorf("gateway = %s, want 10.1.2.1", gateway)
	}
	if dhcpStart.String() != "10.1.2.2" {
		t.Errorf("dhcpStart = %s, want 10.1.2.2", dhcpStart)
	}
	if dhcpEnd.String() != "10.1.2.254" {
		t.Errorf("dhcpEnd = %s, want 10.1.2.254", dhcpEnd)
	}
	if netmask.String() != "255.255.255.0" {
		t.Errorf("netmask = %s, want 255.255.255.0", netmask)
	}
}

func TestBuildDomainXMLSetsNameUUIDDiskAndNetwork(t *testing.T) {
	base := `<domain type="kvm"><name>placeholder</name></domain>`
	doc, err := BuildDomainXML("env-123", base, "/var/lib/see/env-123.qcow2", "see-net")
	if err != nil {
		t.Fatalf("BuildDomainXML() error = %v", err)
	}

	name, ok, netErr := InterfaceNetworkName(doc)
	if netErr != nil {
		t.Fatalf("InterfaceNetworkName() error = %v", netErr)
	}
	if !ok || name != "see-net" {
		t.Fatalf("InterfaceNetworkName() = (%q, %v), want (\"see-net\", true)", name, ok)
	}

	var parsed domainXMLDoc
	if err := xml.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("xml.Unmarshal() error = %v", err)
	}
	if parsed.Name != "env-123" || parsed.UUID != "env-123" {
		t.Fatalf("name/uuid = (%q, %q), want (\"env-123\", \"env-123\")", parsed.Name, parsed.UUID)
	}
	if len(parsed.Devices.Disks) != 1 || parsed.Devices.Disks[0].Source == nil || parsed.Devices.Disks[0].Source.File != "/var/lib/see/env-123.qcow2" {
		t.Fatalf("disk source not set to /var/lib/see/env-123.qcow2 in %s", doc)
	}
}

func TestPoolPathRoundTrip(t *testing.T) {
	doc := ClonePoolXML("env-123", "/var/lib/see/pools/env-123")
	path, err := PoolPath(doc)
	if err != nil {
		t.Fatalf("PoolPath() error = %v", err)
	}
	if path != "/var/lib/see/pools/env-123" {
		t.Fatalf("PoolPath() = %q, want /var/lib/see/pools/env-123", path)
	}
}
