package respio

import (
	"bytes"
	"testing"

	"rmtcore/internal/buffer"
)

func newMsgWithBytes(data []byte) *Msg {
	m := AcquireMsg(true)
	pool := buffer.NewSegmentPool(4096, 0)
	seg, _ := pool.Acquire()
	copy(seg.Data, data)
	seg.Last = len(data)
	m.AppendSegment(seg)
	return m
}

func TestParseCompleteCommandReturnsOK(t *testing.T) {
	wire := EncodeStrings("SET", "foo", "bar")
	m := newMsgWithBytes(wire)
	if res := m.Parse(); res != ResultOK {
		t.Fatalf("Parse() = %v, want ResultOK", res)
	}
	if m.Cmd != "SET" {
		t.Errorf("Cmd = %q, want SET", m.Cmd)
	}
	if len(m.Keys) != 1 || string(m.Keys[0]) != "foo" {
		t.Errorf("Keys = %v, want [foo]", m.Keys)
	}
}

func TestParseIncompleteCountLineReturnsAgain(t *testing.T) {
	m := newMsgWithBytes([]byte("*3"))
	if res := m.Parse(); res != ResultAgain {
		t.Fatalf("Parse() = %v, want ResultAgain for a count line with no CRLF yet", res)
	}
}

func TestParseMidBulkBodySplitReturnsRepair(t *testing.T) {
	full := EncodeStrings("SET", "foo", "a-long-value-that-spans")
	// Truncate partway through the last bulk string's body.
	truncated := full[:len(full)-5]
	m := newMsgWithBytes(truncated)
	if res := m.Parse(); res != ResultRepair {
		t.Fatalf("Parse() = %v, want ResultRepair", res)
	}
}

func TestParseMalformedPrefixReturnsError(t *testing.T) {
	m := newMsgWithBytes([]byte("not-resp-at-all"))
	if res := m.Parse(); res != ResultError {
		t.Fatalf("Parse() = %v, want ResultError", res)
	}
}

func TestParseEmptyStreamReturnsAgain(t *testing.T) {
	m := newMsgWithBytes(nil)
	if res := m.Parse(); res != ResultAgain {
		t.Fatalf("Parse() = %v, want ResultAgain", res)
	}
}

func TestExtractKeysMultiKeyIndependentStepsByTwo(t *testing.T) {
	wire := EncodeStrings("MSET", "k1", "v1", "k2", "v2")
	m := newMsgWithBytes(wire)
	m.Parse()
	if len(m.Keys) != 2 || string(m.Keys[0]) != "k1" || string(m.Keys[1]) != "k2" {
		t.Errorf("Keys = %v, want [k1 k2]", m.Keys)
	}
}

func TestExtractKeysMultiKeyFlatTakesEveryArg(t *testing.T) {
	wire := EncodeStrings("DEL", "k1", "k2", "k3")
	m := newMsgWithBytes(wire)
	m.Parse()
	if len(m.Keys) != 3 {
		t.Errorf("Keys = %v, want 3 keys", m.Keys)
	}
}

func TestExtractKeysAdminCommandHasNoKeys(t *testing.T) {
	wire := EncodeStrings("PING")
	m := newMsgWithBytes(wire)
	m.Parse()
	if m.Keys != nil {
		t.Errorf("Keys = %v, want nil for PING", m.Keys)
	}
	if !m.NoForward && m.Kind != KindAdmin {
		t.Errorf("Kind = %v, want KindAdmin", m.Kind)
	}
}

func TestExtractKeysNoForwardCommandIsSelect(t *testing.T) {
	wire := EncodeStrings("SELECT", "0")
	m := newMsgWithBytes(wire)
	m.Parse()
	if !m.NoForward {
		t.Error("SELECT should be flagged NoForward")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	wire := Encode([][]byte{[]byte("SET"), []byte("k"), []byte("v")})
	want := "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"
	if !bytes.Equal(wire, []byte(want)) {
		t.Errorf("Encode = %q, want %q", wire, want)
	}
	m := newMsgWithBytes(wire)
	if res := m.Parse(); res != ResultOK {
		t.Fatalf("re-parsing encoded bytes failed: %v", res)
	}
	if len(m.Args) != 3 || string(m.Args[2]) != "v" {
		t.Errorf("Args = %v", m.Args)
	}
}
