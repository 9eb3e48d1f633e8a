// Package ifaddr resolves configured interface entries into the
// literal address/mask records the relay core operates on. Resolution
// happens once at startup; the relay never talks to the OS about
// interfaces again.
package ifaddr

import (
	"fmt"
	"net/netip"

	"github.com/gobwas/glob"
	"github.com/vishvananda/netlink"

	"github.com/sakateka/mdns-relay/internal/config"
	"github.com/sakateka/mdns-relay/internal/relay"
	"github.com/sakateka/mdns-relay/internal/xnetip"
)

// Resolve expands every configuration entry into one or more relay
// interface records, preserving configuration order. Entries naming an
// OS link (or a glob over link names) take the first IPv4 address and
// mask of each matched link; literal entries are used as given, with a
// single-host mask when none is configured.
func Resolve(entries []config.InterfaceConfig) ([]*relay.Interface, error) {
	var links []netlink.Link

	ifaces := make([]*relay.Interface, 0, len(entries))
	for idx := range entries {
		entry := &entries[idx]

		if entry.Name == "" {
			iface, err := resolveLiteral(entry)
			if err != nil {
				return nil, fmt.Errorf("interface #%d: %w", idx, err)
			}
			ifaces = append(ifaces, iface)
			continue
		}

		if links == nil {
			var err error
			if links, err = netlink.LinkList(); err != nil {
				return nil, fmt.Errorf("failed to list links: %w", err)
			}
		}

		resolved, err := resolveLinks(entry, links)
		if err != nil {
			return nil, fmt.Errorf("interface #%d (%s): %w", idx, entry.Name, err)
		}
		ifaces = append(ifaces, resolved...)
	}

	return ifaces, nil
}

func resolveLiteral(entry *config.InterfaceConfig) (*relay.Interface, error) {
	mask := xnetip.HostMask
	if entry.Mask != "" {
		var err error
		if mask, err = xnetip.ParseMask(entry.Mask); err != nil {
			return nil, err
		}
	}

	network, err := xnetip.New(entry.Address, mask)
	if err != nil {
		return nil, err
	}

	return &relay.Interface{
		Net:       network,
		ForwardTo: entry.ForwardTo,
		Reverse:   entry.Reverse,
	}, nil
}

func resolveLinks(entry *config.InterfaceConfig, links []netlink.Link) ([]*relay.Interface, error) {
	matcher, err := glob.Compile(entry.Name)
	if err != nil {
		return nil, fmt.Errorf("invalid link pattern: %w", err)
	}

	var ifaces []*relay.Interface
	for _, link := range links {
		if !matcher.Match(link.Attrs().Name) {
			continue
		}

		network, err := linkNetwork(link)
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", link.Attrs().Name, err)
		}
		if !network.IsValid() {
			// Matched link without an IPv4 address; a glob may
			// legitimately cover such links, a literal name may not.
			continue
		}

		ifaces = append(ifaces, &relay.Interface{
			Net:       network,
			ForwardTo: entry.ForwardTo,
			Reverse:   entry.Reverse,
		})
	}

	if len(ifaces) == 0 {
		return nil, fmt.Errorf("no link with an IPv4 address matches")
	}
	return ifaces, nil
}

// linkNetwork returns the first IPv4 address of the link together with
// its mask, or the zero value when the link has none.
func linkNetwork(link netlink.Link) (xnetip.NetWithMask, error) {
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return xnetip.NetWithMask{}, fmt.Errorf("failed to list addresses: %w", err)
	}

	for _, addr := range addrs {
		if addr.IPNet == nil {
			continue
		}
		ip, ok := netip.AddrFromSlice(addr.IPNet.IP.To4())
		if !ok {
			continue
		}
		if len(addr.IPNet.Mask) != 4 {
			continue
		}
		return xnetip.New(ip, [4]byte(addr.IPNet.Mask))
	}

	return xnetip.NetWithMask{}, nil
}
