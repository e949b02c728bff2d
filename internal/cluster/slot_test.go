package cluster

import "testing"

func TestSlotHashTagOverridesKey(t *testing.T) {
	a := Slot([]byte("{user1000}.following"))
	b := Slot([]byte("{user1000}.followers"))
	if a != b {
		t.Errorf("keys sharing hash tag user1000 landed on different slots: %d vs %d", a, b)
	}
}

func TestSlotEmptyHashTagFallsBackToWholeKey(t *testing.T) {
	withEmptyTag := Slot([]byte("{}foo"))
	whole := crc16([]byte("{}foo")) % NumSlots
	if withEmptyTag != whole {
		t.Errorf("empty tag should hash the whole key deterministically")
	}
}

func TestSlotIsWithinRange(t *testing.T) {
	for _, k := range []string{"foo", "bar", "{tag}key", ""} {
		s := Slot([]byte(k))
		if s >= NumSlots {
			t.Errorf("Slot(%q) = %d, out of [0,%d)", k, s, NumSlots)
		}
	}
}

func TestSlotKnownCRC16Vector(t *testing.T) {
	// CRC16-CCITT("123456789") = 0x31C3, the standard test vector for this
	// polynomial/variant.
	if got := crc16([]byte("123456789")); got != 0x31C3 {
		t.Errorf("crc16(123456789) = 0x%04X, want 0x31C3", got)
	}
}

func TestSlotDifferentKeysUsuallyDifferentSlots(t *testing.T) {
	if Slot([]byte("foo")) == Slot([]byte("completelydifferentkey")) {
		t.Skip("hash collision, not a bug but worth noting if seen repeatedly")
	}
}
