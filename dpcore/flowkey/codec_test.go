package flowkey

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mdlayher/netlink"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		desc string
		k    Key
	}{
		{
			desc: "bare ethernet",
			k: Key{
				InPort: 1,
				Eth:    Ethernet{Src: EthAddr{1, 2, 3, 4, 5, 6}, Dst: EthAddr{6, 5, 4, 3, 2, 1}, EthType: 0x0800},
			},
		},
		{
			desc: "vlan tagged ipv4 tcp",
			k: Key{
				InPort: 2,
				Eth:    Ethernet{EthType: 0x0800},
				VLAN:   VLAN{Present: true, TCI: 0x1064},
				IPv4: IPv4{
					Present: true,
					Src:     IPv4Addr{10, 0, 0, 1},
					Dst:     IPv4Addr{10, 0, 0, 2},
					Proto:   6,
					Tos:     1,
					Ttl:     64,
				},
				TCP: TCP{Present: true, Src: 1234, Dst: 80},
			},
		},
		{
			desc: "ipv6 udp",
			k: Key{
				InPort: 3,
				Eth:    Ethernet{EthType: 0x86dd},
				IPv6: IPv6{
					Present: true,
					Src:     IPv6Addr{0: 0x20, 1: 0x01},
					Dst:     IPv6Addr{0: 0x20, 1: 0x02},
					Proto:   17,
					Hlimit:  64,
				},
				UDP: UDP{Present: true, Src: 53, Dst: 5353},
			},
		},
		{
			desc: "arp",
			k: Key{
				InPort: 4,
				Eth:    Ethernet{EthType: 0x0806},
				ARP: ARP{
					Present: true,
					SIP:     IPv4Addr{192, 168, 0, 1},
					TIP:     IPv4Addr{192, 168, 0, 2},
					Op:      1,
					SHA:     EthAddr{1, 1, 1, 1, 1, 1},
					THA:     EthAddr{2, 2, 2, 2, 2, 2},
				},
			},
		},
		{
			desc: "mpls",
			k: Key{
				InPort: 5,
				Eth:    Ethernet{EthType: 0x8847},
				MPLS:   MPLS{Present: true, LSE: 0xdeadbeef},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			encoded := Encode(tt.k)
			got, err := Decode(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if diff := cmp.Diff(tt.k, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
			if reencoded := Encode(got); string(reencoded) != string(encoded) {
				t.Fatalf("encode(decode(x)) != x bytewise")
			}
		})
	}
}

func TestDecodeShortAttributes(t *testing.T) {
	tests := []struct {
		desc string
		typ  int
		data []byte
	}{
		{desc: "short ethernet", typ: 4, data: []byte{1, 2, 3}},
		{desc: "short ipv4", typ: 7, data: []byte{1, 2, 3}},
		{desc: "short arp", typ: 13, data: make([]byte, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			b, err := netlink.MarshalAttributes([]netlink.Attribute{{Type: uint16(tt.typ), Data: tt.data}})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if _, err := Decode(b); err == nil {
				t.Fatal("decode of truncated attribute succeeded")
			}
		})
	}
}
