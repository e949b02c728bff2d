package rdbread

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// parseHash decodes TypeHash (length-prefixed field/value pairs),
// TypeHashZiplist, and TypeHashListpack into a HashValue.
func (p *Parser) parseHash(typeByte byte) (*HashValue, error) {
	switch typeByte {
	case TypeHash:
		return p.parseHashStandard()
	case TypeHashZiplist:
		return p.parseHashZiplist()
	case TypeHashListpack:
		return p.parseHashListpack()
	default:
		return nil, fmt.Errorf("rdbread: unsupported hash encoding %d", typeByte)
	}
}

func (p *Parser) parseHashStandard() (*HashValue, error) {
	count, _, err := p.readLength()
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string, count)
	for i := uint64(0); i < count; i++ {
		field, err := p.readStringFull()
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		value, err := p.readStringFull()
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		fields[field] = value
	}
	return &HashValue{Fields: fields}, nil
}

func (p *Parser) parseHashZiplist() (*HashValue, error) {
	raw, err := p.readStringFull()
	if err != nil {
		return nil, err
	}
	entries, err := parseZiplist([]byte(raw))
	if err != nil {
		return nil, err
	}
	return zipEntriesToHash(entries)
}

func (p *Parser) parseHashListpack() (*HashValue, error) {
	raw, err := p.readStringFull()
	if err != nil {
		return nil, err
	}
	entries, err := parseListpack([]byte(raw))
	if err != nil {
		return nil, err
	}
	return zipEntriesToHash(entries)
}

func zipEntriesToHash(entries []string) (*HashValue, error) {
	if len(entries)%2 != 0 {
		return nil, fmt.Errorf("rdbread: odd hash entry count %d", len(entries))
	}
	fields := make(map[string]string, len(entries)/2)
	for i := 0; i < len(entries); i += 2 {
		fields[entries[i]] = entries[i+1]
	}
	return &HashValue{Fields: fields}, nil
}

// parseList decodes TypeListQuicklist/TypeListQuicklist2 (a length-prefixed
// list of ziplist or listpack nodes) into a ListValue.
func (p *Parser) parseList(typeByte byte) (*ListValue, error) {
	nodeCount, _, err := p.readLength()
	if err != nil {
		return nil, err
	}
	var elements []string
	for i := uint64(0); i < nodeCount; i++ {
		container := uint64(quicklistContainerPacked)
		if typeByte == TypeListQuicklist2 {
			container, _, err = p.readLength()
			if err != nil {
				return nil, fmt.Errorf("node %d container: %w", i, err)
			}
		}
		raw, err := p.readStringFull()
		if err != nil {
			return nil, fmt.Errorf("node %d payload: %w", i, err)
		}
		if container == quicklistContainerPlain {
			elements = append(elements, raw)
			continue
		}
		var entries []string
		if typeByte == TypeListQuicklist2 {
			entries, err = parseListpack([]byte(raw))
		} else {
			entries, err = parseZiplist([]byte(raw))
		}
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		elements = append(elements, entries...)
	}
	return &ListValue{Elements: elements}, nil
}

// parseSet decodes TypeSet, TypeSetIntset, and TypeSetListpack into a
// SetValue.
func (p *Parser) parseSet(typeByte byte) (*SetValue, error) {
	switch typeByte {
	case TypeSet:
		return p.parseSetStandard()
	case TypeSetIntset:
		return p.parseSetIntset()
	case TypeSetListpack:
		return p.parseSetListpack()
	default:
		return nil, fmt.Errorf("rdbread: unsupported set encoding %d", typeByte)
	}
}

func (p *Parser) parseSetStandard() (*SetValue, error) {
	count, _, err := p.readLength()
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		m, err := p.readStringFull()
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		members = append(members, m)
	}
	return &SetValue{Members: members}, nil
}

func (p *Parser) parseSetIntset() (*SetValue, error) {
	raw, err := p.readStringFull()
	if err != nil {
		return nil, err
	}
	members, err := parseIntset([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &SetValue{Members: members}, nil
}

func (p *Parser) parseSetListpack() (*SetValue, error) {
	raw, err := p.readStringFull()
	if err != nil {
		return nil, err
	}
	entries, err := parseListpack([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &SetValue{Members: entries}, nil
}

// parseZSet decodes TypeZSet2, TypeZSetZiplist, and TypeZSetListpack into a
// ZSetValue.
func (p *Parser) parseZSet(typeByte byte) (*ZSetValue, error) {
	switch typeByte {
	case TypeZSet2:
		return p.parseZSetStandard()
	case TypeZSetZiplist:
		return p.parseZSetZiplist()
	case TypeZSetListpack:
		return p.parseZSetListpack()
	default:
		return nil, fmt.Errorf("rdbread: unsupported zset encoding %d", typeByte)
	}
}

func (p *Parser) parseZSetStandard() (*ZSetValue, error) {
	count, _, err := p.readLength()
	if err != nil {
		return nil, err
	}
	members := make([]ZSetMember, 0, count)
	for i := uint64(0); i < count; i++ {
		member, err := p.readStringFull()
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		score, err := p.readDouble()
		if err != nil {
			return nil, fmt.Errorf("score %d: %w", i, err)
		}
		members = append(members, ZSetMember{Member: member, Score: score})
	}
	return &ZSetValue{Members: members}, nil
}

func (p *Parser) parseZSetZiplist() (*ZSetValue, error) {
	raw, err := p.readStringFull()
	if err != nil {
		return nil, err
	}
	entries, err := parseZiplist([]byte(raw))
	if err != nil {
		return nil, err
	}
	return zipEntriesToZSet(entries)
}

func (p *Parser) parseZSetListpack() (*ZSetValue, error) {
	raw, err := p.readStringFull()
	if err != nil {
		return nil, err
	}
	entries, err := parseListpack([]byte(raw))
	if err != nil {
		return nil, err
	}
	return zipEntriesToZSet(entries)
}

func zipEntriesToZSet(entries []string) (*ZSetValue, error) {
	if len(entries)%2 != 0 {
		return nil, fmt.Errorf("rdbread: odd zset entry count %d", len(entries))
	}
	members := make([]ZSetMember, 0, len(entries)/2)
	for i := 0; i < len(entries); i += 2 {
		score, err := strconv.ParseFloat(entries[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("score %q: %w", entries[i+1], err)
		}
		members = append(members, ZSetMember{Member: entries[i], Score: score})
	}
	return &ZSetValue{Members: members}, nil
}

// readDouble reads the RDB binary-double encoding used by TypeZSet2: a
// raw little-endian IEEE754 float64.
func (p *Parser) readDouble() (float64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(p.reader, buf); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// parseStream decodes a stream's listpack-backed rax tree into a flat
// StreamValue. Consumer groups are not carried across (spec.md scopes
// streams down to data-bearing XADD replay, not consumer-group state).
func (p *Parser) parseStream(typeByte byte) (*StreamValue, error) {
	sv := &StreamValue{}

	count, _, err := p.readLength()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		nodeKey, err := p.readStringFull()
		if err != nil {
			return nil, fmt.Errorf("stream node key %d: %w", i, err)
		}
		raw, err := p.readStringFull()
		if err != nil {
			return nil, fmt.Errorf("stream node payload %d: %w", i, err)
		}
		msgs, err := decodeStreamListpack(nodeKey, []byte(raw))
		if err != nil {
			return nil, fmt.Errorf("stream node %d: %w", i, err)
		}
		sv.Messages = append(sv.Messages, msgs...)
	}

	length, _, err := p.readLength()
	if err != nil {
		return nil, fmt.Errorf("stream length: %w", err)
	}
	sv.Length = length

	lastMs, _, err := p.readLength()
	if err != nil {
		return nil, fmt.Errorf("stream last-id ms: %w", err)
	}
	lastSeq, _, err := p.readLength()
	if err != nil {
		return nil, fmt.Errorf("stream last-id seq: %w", err)
	}
	sv.LastID = fmt.Sprintf("%d-%d", lastMs, lastSeq)

	if typeByte == TypeStreamListpacks2 || typeByte == TypeStreamListpacks3 {
		// First-entry-id (ms, seq) / max-deleted-id (ms, seq) / entries-added
		// counters: consumed and discarded, they don't change the replayed
		// message set.
		for i := 0; i < 5; i++ {
			if _, _, err := p.readLength(); err != nil {
				return nil, fmt.Errorf("stream metadata %d: %w", i, err)
			}
		}
	}

	// Consumer groups: count, then per-group name/last-delivered-id/PEL/
	// consumers. Groups are skipped structurally since spec.md replays
	// data, not delivery bookkeeping.
	groupCount, _, err := p.readLength()
	if err != nil {
		return nil, fmt.Errorf("stream group count: %w", err)
	}
	for g := uint64(0); g < groupCount; g++ {
		if err := p.skipStreamGroup(typeByte); err != nil {
			return nil, fmt.Errorf("stream group %d: %w", g, err)
		}
	}

	return sv, nil
}

func (p *Parser) skipStreamGroup(typeByte byte) error {
	if _, err := p.readStringFull(); err != nil { // group name
		return err
	}
	if _, _, err := p.readLength(); err != nil { // last-delivered ms
		return err
	}
	if _, _, err := p.readLength(); err != nil { // last-delivered seq
		return err
	}
	if typeByte == TypeStreamListpacks2 || typeByte == TypeStreamListpacks3 {
		if _, _, err := p.readLength(); err != nil { // entries-read
			return err
		}
	}

	pelCount, _, err := p.readLength()
	if err != nil {
		return err
	}
	for i := uint64(0); i < pelCount; i++ {
		buf := make([]byte, 16) // stream ID
		if _, err := io.ReadFull(p.reader, buf); err != nil {
			return err
		}
		if _, err := p.readInt64(); err != nil { // delivery time
			return err
		}
		if _, _, err := p.readLength(); err != nil { // delivery count
			return err
		}
	}

	consumerCount, _, err := p.readLength()
	if err != nil {
		return err
	}
	for i := uint64(0); i < consumerCount; i++ {
		if _, err := p.readStringFull(); err != nil { // consumer name
			return err
		}
		if _, err := p.readInt64(); err != nil { // seen-time
			return err
		}
		if typeByte == TypeStreamListpacks3 {
			if _, err := p.readInt64(); err != nil { // active-time
				return err
			}
		}
		pelRefCount, _, err := p.readLength()
		if err != nil {
			return err
		}
		for j := uint64(0); j < pelRefCount; j++ {
			buf := make([]byte, 16)
			if _, err := io.ReadFull(p.reader, buf); err != nil {
				return err
			}
		}
	}
	return nil
}
