package receipt

import "testing"

func TestKindRoundtrip(t *testing.T) {
	kinds := []Kind{
		KindData, KindTombstone, KindStreamInit,
		KindGrant, KindRevoke, KindKeyShare, KindAnchor,
	}
	for _, k := range kinds {
		got, ok := KindFromUint16(k.Uint16())
		if !ok || got != k {
			t.Errorf("KindFromUint16(%#04x) = %v, %v", k.Uint16(), got, ok)
		}
	}
}

func TestKindUnknown(t *testing.T) {
	for _, v := range []uint16{0x0000, 0x0004, 0x00ff, 0x0103, 0x0201, 0xffff} {
		if _, ok := KindFromUint16(v); ok {
			t.Errorf("KindFromUint16(%#04x) unexpectedly ok", v)
		}
	}
}

func TestKindCategories(t *testing.T) {
	tests := []struct {
		kind       Kind
		core       bool
		permission bool
		sync       bool
	}{
		{KindData, true, false, false},
		{KindTombstone, true, false, false},
		{KindStreamInit, true, false, false},
		{KindGrant, false, true, false},
		{KindRevoke, false, true, false},
		{KindKeyShare, false, true, false},
		{KindAnchor, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.IsCore(); got != tt.core {
				t.Errorf("IsCore() = %v, want %v", got, tt.core)
			}
			if got := tt.kind.IsPermission(); got != tt.permission {
				t.Errorf("IsPermission() = %v, want %v", got, tt.permission)
			}
			if got := tt.kind.IsSync(); got != tt.sync {
				t.Errorf("IsSync() = %v, want %v", got, tt.sync)
			}
		})
	}
}
