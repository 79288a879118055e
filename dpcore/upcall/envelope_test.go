package upcall

import (
	"testing"

	"github.com/vswitchd/dpcore/dpcore/internal/ovskey"
)

func TestEnvelopeCommandByKind(t *testing.T) {
	miss := Record{Kind: KindMiss}.Envelope()
	if int(miss.Header.Command) != ovskey.PacketCmdMiss {
		t.Fatalf("miss command = %d, want %d", miss.Header.Command, ovskey.PacketCmdMiss)
	}

	explicit := Record{Kind: KindUserspace, Userdata: []byte{1}}.Envelope()
	if int(explicit.Header.Command) != ovskey.PacketCmdAction {
		t.Fatalf("userspace command = %d, want %d", explicit.Header.Command, ovskey.PacketCmdAction)
	}
}
