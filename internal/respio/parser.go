package respio

import (
	"bytes"
	"fmt"
)

// Parse drives m's parser over whatever bytes have been appended to the
// message's segment chain since the last call, following the outcome
// table from spec.md §4.E:
//
//	OK     - a complete RESP array command was parsed
//	REPAIR - structurally valid so far, but parsing stopped in the middle
//	         of a bulk-string body that spans a segment boundary; the
//	         caller must splice the next segment's head onto the tail
//	         before calling Parse again
//	AGAIN  - a valid prefix was seen, waiting for more segments
//	ERROR  - the byte stream is not a valid RESP frame
//
// Parse does not mutate m.segments; it only reports how many bytes (ParsedPos)
// of the flattened chain belong to the message once Result==OK, and whether
// the last segment needs mid-body splicing (Result==REPAIR).
func (m *Msg) Parse() ParseResult {
	data := m.Bytes()
	consumed, result, args := parseRESPCommand(data)
	m.Result = result
	switch result {
	case ResultOK:
		m.pos = consumed
		m.Args = args
		if len(args) > 0 {
			m.Cmd = string(bytes.ToUpper(args[0]))
		}
		spec := LookupSpec(m.Cmd)
		m.Kind = spec.Kind
		m.Keys = extractKeys(m.Cmd, spec, args)
		m.NoForward = spec.Kind == KindNoForward
	case ResultRepair:
		m.pos = consumed
	case ResultAgain:
		m.pos = consumed
	}
	return result
}

// ParsedPos returns the absolute offset within the flattened chain where
// parsing currently stands (used by the writer to decide whether the
// whole segment chain belongs to this message, or whether msg_split is
// needed).
func (m *Msg) ParsedPos() int { return m.pos }

// parseRESPCommand attempts to parse exactly one RESP "array of bulk
// strings" command (the only shape a replication stream ever sends) from
// data. It never parses more than one command per call — callers loop.
func parseRESPCommand(data []byte) (consumed int, result ParseResult, args [][]byte) {
	if len(data) == 0 {
		return 0, ResultAgain, nil
	}
	if data[0] != '*' {
		return 0, ResultError, nil
	}
	i := 1
	count, n, ok := readCRLFInt(data, i)
	if !ok {
		if len(data)-i > 64 { // a count line should never be this long
			return 0, ResultError, nil
		}
		return 0, ResultAgain, nil
	}
	i += n
	if count < 0 || count > 1<<20 {
		return 0, ResultError, nil
	}

	out := make([][]byte, 0, count)
	for k := 0; k < count; k++ {
		if i >= len(data) {
			return 0, ResultAgain, nil
		}
		if data[i] != '$' {
			return 0, ResultError, nil
		}
		j := i + 1
		blen, n2, ok := readCRLFInt(data, j)
		if !ok {
			if len(data)-j > 32 {
				return 0, ResultError, nil
			}
			return 0, ResultAgain, nil
		}
		j += n2
		if blen < 0 || blen > 512<<20 {
			return 0, ResultError, nil
		}
		need := j + blen + 2
		if need > len(data) {
			// We know the declared length but don't have the full body
			// yet: this is the REPAIR case (mid-bulk-body split).
			return 0, ResultRepair, nil
		}
		if data[j+blen] != '\r' || data[j+blen+1] != '\n' {
			return 0, ResultError, nil
		}
		out = append(out, data[j:j+blen])
		i = need
	}
	return i, ResultOK, out
}

// readCRLFInt reads a decimal integer terminated by \r\n starting at off.
// Returns (value, bytesConsumedIncludingCRLF, ok).
func readCRLFInt(data []byte, off int) (int, int, bool) {
	idx := bytes.Index(data[off:], []byte("\r\n"))
	if idx < 0 {
		return 0, 0, false
	}
	line := data[off : off+idx]
	neg := false
	v := 0
	if len(line) == 0 {
		return 0, 0, false
	}
	start := 0
	if line[0] == '-' {
		neg = true
		start = 1
	}
	if start == len(line) {
		return 0, 0, false
	}
	for _, c := range line[start:] {
		if c < '0' || c > '9' {
			return 0, 0, false
		}
		v = v*10 + int(c-'0')
	}
	if neg {
		v = -v
	}
	return v, idx + 2, true
}

// extractKeys pulls key byte slices out of argv according to spec.
func extractKeys(cmd string, spec Spec, args [][]byte) [][]byte {
	if len(args) < 2 {
		return nil
	}
	rest := args[1:]
	switch spec.Kind {
	case KindMultiKeyIndependent:
		step := spec.KeyStep
		if step <= 0 {
			step = 1
		}
		keys := make([][]byte, 0, (len(rest)+step-1)/step)
		for i := 0; i < len(rest); i += step {
			keys = append(keys, rest[i])
		}
		return keys
	case KindMultiKeyFlat:
		keys := make([][]byte, len(rest))
		copy(keys, rest)
		return keys
	case KindNoForward, KindAdmin:
		return nil
	default:
		return [][]byte{rest[0]}
	}
}

// Encode renders argv as a RESP2 array-of-bulk-strings command, the wire
// format used for both source replay parsing (tests) and target writes.
func Encode(args [][]byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "*%d\r\n", len(args))
	for _, a := range args {
		fmt.Fprintf(&buf, "$%d\r\n", len(a))
		buf.Write(a)
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

// EncodeStrings is a convenience wrapper over Encode for string args.
func EncodeStrings(args ...string) []byte {
	b := make([][]byte, len(args))
	for i, a := range args {
		b[i] = []byte(a)
	}
	return Encode(b)
}
