package rdbread

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Parser streams and decodes an RDB payload (header through EOF opcode)
// from an io.Reader — in reader.ingestRDB, a tee of the source connection
// whose copy of the bytes is chunked into the SrcNode's rdb.data segment
// queue during StateTransfer.
type Parser struct {
	reader         *bufio.Reader
	originalReader *bufio.Reader

	currentDB int
	expireMs  int64
}

// NewParser builds a Parser bound to r.
func NewParser(r io.Reader) *Parser {
	br := bufio.NewReader(r)
	return &Parser{reader: br, originalReader: br}
}

// ParseHeader validates the "REDIS####" magic and discards leading AUX
// fields, leaving the reader positioned at the first opcode ParseNext
// should see.
func (p *Parser) ParseHeader() error {
	magic := make([]byte, 9)
	if _, err := io.ReadFull(p.reader, magic); err != nil {
		return fmt.Errorf("rdbread: read magic: %w", err)
	}
	if magic[0] != 'R' || magic[1] != 'E' || magic[2] != 'D' || magic[3] != 'I' || magic[4] != 'S' {
		return fmt.Errorf("rdbread: bad magic %q", magic)
	}

	for {
		opcode, err := p.peekByte()
		if err != nil {
			return fmt.Errorf("rdbread: peek opcode: %w", err)
		}
		if opcode != OpcodeAux {
			return nil
		}
		p.readByte()
		p.readString()
		p.readString()
	}
}

// ParseNext returns the next decoded Entry, or io.EOF once the stream's
// EOF opcode is reached.
func (p *Parser) ParseNext() (*Entry, error) {
	for {
		opcode, err := p.readByte()
		if err != nil {
			return nil, err
		}

		switch opcode {
		case OpcodeExpireMS:
			p.expireMs, err = p.readInt64()
			if err != nil {
				return nil, fmt.Errorf("rdbread: expiretime_ms: %w", err)
			}
			continue

		case OpcodeExpireSec:
			sec, err := p.readInt32()
			if err != nil {
				return nil, fmt.Errorf("rdbread: expiretime: %w", err)
			}
			p.expireMs = int64(sec) * 1000
			continue

		case OpcodeSelectDB:
			db, _, err := p.readLength()
			if err != nil {
				return nil, fmt.Errorf("rdbread: selectdb: %w", err)
			}
			p.currentDB = int(db)
			continue

		case OpcodeEOF:
			checksum := make([]byte, 8)
			if _, err := io.ReadFull(p.reader, checksum); err != nil {
				return nil, fmt.Errorf("rdbread: eof checksum: %w", err)
			}
			return nil, io.EOF

		case OpcodeAux:
			p.readString()
			p.readString()
			continue

		case OpcodeCompressedZSTD:
			if err := p.handleZstdBlob(); err != nil {
				return nil, err
			}
			continue

		case OpcodeCompressedLZ4:
			if err := p.handleLZ4Blob(); err != nil {
				return nil, err
			}
			continue

		case OpcodeCompressedEnd:
			p.reader = p.originalReader
			continue

		default:
			return p.parseKeyValue(opcode)
		}
	}
}

func (p *Parser) parseKeyValue(typeByte byte) (*Entry, error) {
	key := p.readString()
	entry := &Entry{Key: key, Type: typeByte, DbIndex: p.currentDB, ExpireMs: p.expireMs}

	var err error
	switch typeByte {
	case TypeString:
		entry.Value, err = p.parseString()
	case TypeHash, TypeHashZiplist, TypeHashListpack:
		entry.Value, err = p.parseHash(typeByte)
	case TypeListQuicklist, TypeListQuicklist2:
		entry.Value, err = p.parseList(typeByte)
	case TypeSet, TypeSetIntset, TypeSetListpack:
		entry.Value, err = p.parseSet(typeByte)
	case TypeZSet2, TypeZSetZiplist, TypeZSetListpack:
		entry.Value, err = p.parseZSet(typeByte)
	case TypeStreamListpacks, TypeStreamListpacks2, TypeStreamListpacks3:
		entry.Value, err = p.parseStream(typeByte)
	default:
		return nil, fmt.Errorf("rdbread: unsupported type %d (key=%s)", typeByte, key)
	}
	if err != nil {
		return nil, fmt.Errorf("rdbread: parse value (type=%d key=%s): %w", typeByte, key, err)
	}

	p.expireMs = 0
	return entry, nil
}

func (p *Parser) parseString() (*StringValue, error) {
	return &StringValue{Value: p.readString()}, nil
}

func (p *Parser) readByte() (byte, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(p.reader, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (p *Parser) peekByte() (byte, error) {
	buf, err := p.reader.Peek(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (p *Parser) readInt32() (int32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(p.reader, buf); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf)), nil
}

func (p *Parser) readInt64() (int64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(p.reader, buf); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

// readLength parses the RDB length encoding. isSpecial denotes that the
// returned value is an integer/LZF sub-encoding tag rather than a length.
func (p *Parser) readLength() (uint64, bool, error) {
	first, err := p.readByte()
	if err != nil {
		return 0, false, err
	}

	switch (first >> 6) & 0x03 {
	case 0:
		return uint64(first & 0x3F), false, nil
	case 1:
		next, err := p.readByte()
		if err != nil {
			return 0, false, err
		}
		return (uint64(first&0x3F) << 8) | uint64(next), false, nil
	case 2:
		switch first {
		case 0x80:
			buf := make([]byte, 4)
			if _, err := io.ReadFull(p.reader, buf); err != nil {
				return 0, false, err
			}
			return uint64(binary.BigEndian.Uint32(buf)), false, nil
		case 0x81:
			buf := make([]byte, 8)
			if _, err := io.ReadFull(p.reader, buf); err != nil {
				return 0, false, err
			}
			return binary.BigEndian.Uint64(buf), false, nil
		default:
			return uint64(first & 0x3F), true, nil
		}
	default: // case 3
		return uint64(first & 0x3F), true, nil
	}
}

// handleZstdBlob and handleLZ4Blob decompress a compressed-blob section
// and splice it into the read stream in place of the compressed bytes;
// OpcodeCompressedEnd (appended by the decompressor) switches back.
func (p *Parser) handleZstdBlob() error {
	compressed, err := p.readStringFull()
	if err != nil {
		return fmt.Errorf("rdbread: read zstd blob: %w", err)
	}
	decompressed, err := zstdDecompress([]byte(compressed))
	if err != nil {
		return err
	}
	p.spliceDecompressed(decompressed)
	return nil
}

func (p *Parser) handleLZ4Blob() error {
	compressed, err := p.readStringFull()
	if err != nil {
		return fmt.Errorf("rdbread: read lz4 blob: %w", err)
	}
	decompressed, err := lz4Decompress([]byte(compressed))
	if err != nil {
		return err
	}
	p.spliceDecompressed(decompressed)
	return nil
}

func (p *Parser) spliceDecompressed(data []byte) {
	withEnd := make([]byte, len(data)+1)
	copy(withEnd, data)
	withEnd[len(data)] = OpcodeCompressedEnd
	p.reader = bufio.NewReader(bytes.NewReader(withEnd))
}
