package action

import (
	"testing"

	"github.com/mdlayher/netlink"

	"github.com/vswitchd/dpcore/dpcore/flowkey"
)

func flowkeyEth(seed byte) flowkey.EthAddr {
	var a flowkey.EthAddr
	for i := range a {
		a[i] = seed
	}
	return a
}

func mustMarshalRaw(t *testing.T, typ uint16, data []byte) []byte {
	t.Helper()
	b, err := netlink.MarshalAttributes([]netlink.Attribute{{Type: typ, Data: data}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
