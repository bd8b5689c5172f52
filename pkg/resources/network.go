package resources

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"math/big"
	"net"
	"strings"

	"github.com/withsecure/see-go/pkg/metrics"
	"github.com/withsecure/see-go/pkg/types"
)

// MaxAddressAttempts bounds how many times a driver retries defining a
// libvirt network after a dynamically generated address collides with one
// already in use (spec.md §4.3's dynamic network allocation).
const MaxAddressAttempts = 10

// DefaultNetworkXML is the network definition used when a Resources
// configuration asks for a dynamic address but supplies no network
// configuration_path of its own.
const DefaultNetworkXML = `<network><forward mode="nat"/></network>`

// ActiveNetworkLister reports the CIDR ranges already claimed by the
// hypervisor's existing networks, so a freshly generated candidate subnet
// can be checked against them before being claimed. Each driver implements
// this against its own connection; it is the one part of address
// allocation that needs a live hypervisor, so it is kept behind an
// interface to keep the rest of this file unit-testable.
type ActiveNetworkLister interface {
	ActiveNetworkAddresses(ctx context.Context) ([]*net.IPNet, error)
}

// Subnets enumerates every subnetPrefix-bit subnet contained in base,
// mirroring Python ipaddress.IPv4Network.subnets(new_prefix=...).
func Subnets(base *net.IPNet, subnetPrefix int) ([]*net.IPNet, error) {
	baseOnes, bits := base.Mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("only IPv4 base networks are supported")
	}
	if subnetPrefix < baseOnes || subnetPrefix > 32 {
		return nil, fmt.Errorf("subnet prefix %d is not contained within /%d", subnetPrefix, baseOnes)
	}

	count := uint64(1) << uint(subnetPrefix-baseOnes)
	step := uint32(1) << uint(32-subnetPrefix)
	baseAddr := ipToUint32(base.IP.To4())

	out := make([]*net.IPNet, 0, count)
	for i := uint64(0); i < count; i++ {
		addr := baseAddr + uint32(i)*step
		out = append(out, &net.IPNet{
			IP:   uint32ToIP(addr),
			Mask: net.CIDRMask(subnetPrefix, 32),
		})
	}
	return out, nil
}

// SubtractActive removes from candidates every subnet that overlaps one of
// active's ranges.
func SubtractActive(candidates, active []*net.IPNet) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(candidates))
	for _, c := range candidates {
		if !overlapsAny(c, active) {
			out = append(out, c)
		}
	}
	return out
}

func overlapsAny(n *net.IPNet, active []*net.IPNet) bool {
	for _, a := range active {
		if n.Contains(a.IP) || a.Contains(n.IP) {
			return true
		}
	}
	return false
}

// PickRandom returns a uniformly random element of pool, or
// types.ErrAddressExhausted if pool is empty.
func PickRandom(pool []*net.IPNet) (*net.IPNet, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: all IP addresses are in use", types.ErrAddressExhausted)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	if err != nil {
		return nil, fmt.Errorf("failed to pick a random address: %w", err)
	}
	return pool[n.Int64()], nil
}

// AddressLookup generates the candidate subnet pool from cfg and returns
// one not already in use according to lister. Unlike the network-creation
// retry loop around it, a single AddressLookup call does not retry: an
// empty pool after subtracting active networks is
// types.ErrAddressExhausted immediately.
func AddressLookup(ctx context.Context, lister ActiveNetworkLister, cfg types.DynamicAddressConfig) (*net.IPNet, error) {
	_, base, err := net.ParseCIDR(fmt.Sprintf("%s/%d", cfg.IPv4, cfg.Prefix))
	if err != nil {
		return nil, fmt.Errorf("invalid dynamic address base %s/%d: %w", cfg.IPv4, cfg.Prefix, err)
	}

	candidates, err := Subnets(base, cfg.SubnetPrefix)
	if err != nil {
		return nil, err
	}

	active, err := lister.ActiveNetworkAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active networks: %w", err)
	}

	return PickRandom(SubtractActive(candidates, active))
}

// GenerateNetwork retries AddressLookup and BuildNetworkXML up to
// MaxAddressAttempts times, calling create with each candidate until it
// succeeds. create is expected to call the hypervisor's "define this
// network" RPC, which can itself fail on a collision the lister's snapshot
// missed (another caller claimed the same subnet between the lookup and
// the create call).
func GenerateNetwork(ctx context.Context, lister ActiveNetworkLister, cfg types.NetworkConfig, bridgeName string, create func(xmlDoc string) error) (*net.IPNet, error) {
	if cfg.DynamicAddress == nil {
		return nil, fmt.Errorf("no dynamic address configuration")
	}

	baseXML := cfg.ConfigurationPath
	if baseXML == "" {
		baseXML = DefaultNetworkXML
	}

	var attempts int
	for attempts = 0; attempts < MaxAddressAttempts; attempts++ {
		addr, err := AddressLookup(ctx, lister, *cfg.DynamicAddress)
		if err != nil {
			metrics.NetworkAddressExhaustedTotal.Inc()
			return nil, err
		}

		doc, err := BuildNetworkXML(baseXML, bridgeName, addr)
		if err != nil {
			return nil, err
		}

		if err := create(doc); err != nil {
			continue
		}

		metrics.NetworkAddressAttempts.Observe(float64(attempts + 1))
		return addr, nil
	}

	metrics.NetworkAddressExhaustedTotal.Inc()
	return nil, fmt.Errorf("%w: exceeded %d attempts", types.ErrAddressExhausted, MaxAddressAttempts)
}

// BridgeName derives the virtual bridge name for an environment, matching
// the upstream convention of an 8-character, collision-resistant suffix.
func BridgeName(identifier string) string {
	suffix := identifier
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return "virbr-" + suffix
}

type networkXMLDoc struct {
	XMLName xml.Name    `xml:"network"`
	Name    string      `xml:"name,omitempty"`
	UUID    string      `xml:"uuid,omitempty"`
	Forward *forwardXML `xml:"forward"`
	Bridge  *bridgeXML  `xml:"bridge"`
	IP      *ipXML      `xml:"ip"`
}

type forwardXML struct {
	Mode string `xml:"mode,attr"`
}

type bridgeXML struct {
	Name string `xml:"name,attr"`
}

type ipXML struct {
	Address string   `xml:"address,attr"`
	Netmask string   `xml:"netmask,attr"`
	DHCP    *dhcpXML `xml:"dhcp"`
}

type dhcpXML struct {
	Range rangeXML `xml:"range"`
}

type rangeXML struct {
	Start string `xml:"start,attr"`
	End   string `xml:"end,attr"`
}

// BuildNetworkXML sets name/bridge/address on baseXML, an existing network
// definition (DefaultNetworkXML or a caller-supplied configuration_path
// document). It returns types.ErrAddressConflict if baseXML already
// defines a static <ip> block: dynamic addressing and a pre-existing
// static block are mutually exclusive, matching the upstream's
// set_address guard.
func BuildNetworkXML(baseXML, bridgeName string, address *net.IPNet) (string, error) {
	var doc networkXMLDoc
	if err := xml.Unmarshal([]byte(baseXML), &doc); err != nil {
		return "", fmt.Errorf("failed to parse network configuration: %w", err)
	}
	if doc.IP != nil {
		return "", types.ErrAddressConflict
	}

	doc.Bridge = &bridgeXML{Name: bridgeName}

	gateway, dhcpStart, dhcpEnd, netmask, err := addressPlan(address)
	if err != nil {
		return "", err
	}
	doc.IP = &ipXML{
		Address: gateway.String(),
		Netmask: netmask.String(),
		DHCP:    &dhcpXML{Range: rangeXML{Start: dhcpStart.String(), End: dhcpEnd.String()}},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render network XML: %w", err)
	}
	return string(out), nil
}

// addressPlan derives the gateway (first usable address), DHCP start
// (second usable address) and DHCP end (last usable address) for subnet,
// matching the upstream's address[1]/address[2]/address[-2] convention.
func addressPlan(subnet *net.IPNet) (gateway, dhcpStart, dhcpEnd, netmask net.IP, err error) {
	ones, bits := subnet.Mask.Size()
	if bits != 32 {
		return nil, nil, nil, nil, fmt.Errorf("only IPv4 subnets are supported")
	}
	hostBits := 32 - ones
	if hostBits < 2 {
		return nil, nil, nil, nil, fmt.Errorf("subnet /%d is too small to host a gateway and DHCP range", ones)
	}

	base := ipToUint32(subnet.IP.To4())
	broadcast := base | (^uint32(0) >> uint(ones))

	gateway = uint32ToIP(base + 1)
	dhcpStart = uint32ToIP(base + 2)
	dhcpEnd = uint32ToIP(broadcast - 1)
	netmask = net.IP(subnet.Mask)
	return gateway, dhcpStart, dhcpEnd, netmask, nil
}

func ipToUint32(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

func uint32ToIP(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}

// ParseNetworkIPNet extracts the CIDR range a libvirt network XML document
// claims via its <ip address= netmask=> element, used by a driver's
// ActiveNetworkLister implementation.
func ParseNetworkIPNet(networkXMLText string) (*net.IPNet, bool, error) {
	var doc networkXMLDoc
	if err := xml.Unmarshal([]byte(networkXMLText), &doc); err != nil {
		return nil, false, fmt.Errorf("failed to parse network XML: %w", err)
	}
	if doc.IP == nil || doc.IP.Address == "" {
		return nil, false, nil
	}

	ip := net.ParseIP(doc.IP.Address)
	if ip == nil {
		return nil, false, fmt.Errorf("invalid ip address %q in network XML", doc.IP.Address)
	}

	mask := net.IPMask(net.ParseIP(doc.IP.Netmask).To4())
	if doc.IP.Netmask == "" || mask == nil {
		return nil, false, fmt.Errorf("invalid netmask %q in network XML", doc.IP.Netmask)
	}

	network := ip.Mask(mask)
	return &net.IPNet{IP: network, Mask: mask}, true, nil
}

// InterfaceNetworkName extracts the libvirt network name a domain's first
// <interface type="network"> element attaches to, used by a driver's
// Network() lookup-by-domain accessor (spec.md §4.4's "when no network is
// explicitly configured, look it up from the domain" fallback).
func InterfaceNetworkName(domainXMLText string) (string, bool, error) {
	var doc domainXMLDoc
	if err := xml.Unmarshal([]byte(domainXMLText), &doc); err != nil {
		return "", false, fmt.Errorf("failed to parse domain XML: %w", err)
	}
	for _, iface := range doc.Devices.Interfaces {
		if iface.Type == "network" && iface.Source != nil {
			return iface.Source.Network, true, nil
		}
	}
	return "", false, nil
}

// InterfaceMAC extracts the MAC address of a domain's first
// <interface type="network"> element.
func InterfaceMAC(domainXMLText string) (string, bool, error) {
	var doc domainXMLDoc
	if err := xml.Unmarshal([]byte(domainXMLText), &doc); err != nil {
		return "", false, fmt.Errorf("failed to parse domain XML: %w", err)
	}
	for _, iface := range doc.Devices.Interfaces {
		if iface.Type == "network" && iface.MAC != nil {
			return strings.ToLower(iface.MAC.Address), true, nil
		}
	}
	return "", false, nil
}
