package rdbread

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	lzf "github.com/zhuyie/golzf"
)

// readString reads an RDB string, swallowing errors into an empty string;
// callers that need the error use readStringFull directly (parseKeyValue
// wraps it with the key/type context instead).
func (p *Parser) readString() string {
	s, _ := p.readStringFull()
	return s
}

// readStringFull implements the full RDB string grammar: plain strings,
// integer encodings (INT8/INT16/INT32), and LZF-compressed strings.
func (p *Parser) readStringFull() (string, error) {
	length, special, err := p.readLength()
	if err != nil {
		return "", fmt.Errorf("rdbread: string length: %w", err)
	}
	if special {
		return p.readStringEncoded(length)
	}
	if length == 0 {
		return "", nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(p.reader, buf); err != nil {
		return "", fmt.Errorf("rdbread: string body (%d bytes): %w", length, err)
	}
	return string(buf), nil
}

func (p *Parser) readStringEncoded(encoding uint64) (string, error) {
	switch encoding {
	case EncInt8:
		v, err := p.readInt8()
		return strconv.Itoa(int(v)), err
	case EncInt16:
		v, err := p.readInt16()
		return strconv.Itoa(int(v)), err
	case EncInt32:
		v, err := p.readInt32()
		return strconv.Itoa(int(v)), err
	case EncLZF:
		return p.readLZFString()
	default:
		return "", fmt.Errorf("rdbread: unsupported string encoding %d", encoding)
	}
}

func (p *Parser) readInt8() (int8, error) {
	b, err := p.readByte()
	return int8(b), err
}

func (p *Parser) readInt16() (int16, error) {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(p.reader, buf); err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(buf)), nil
}

// readLZFString reads [compressed_len][original_len][payload] and
// decompresses it with golzf.
func (p *Parser) readLZFString() (string, error) {
	compressedLen, _, err := p.readLength()
	if err != nil {
		return "", fmt.Errorf("rdbread: lzf compressed length: %w", err)
	}
	originalLen, _, err := p.readLength()
	if err != nil {
		return "", fmt.Errorf("rdbread: lzf original length: %w", err)
	}
	compressed := make([]byte, compressedLen)
	if _, err := io.ReadFull(p.reader, compressed); err != nil {
		return "", fmt.Errorf("rdbread: lzf payload: %w", err)
	}
	dst := make([]byte, originalLen)
	n, err := lzf.Decompress(compressed, dst)
	if err != nil {
		return "", fmt.Errorf("rdbread: lzf decompress: %w", err)
	}
	if uint64(n) != originalLen {
		return "", fmt.Errorf("rdbread: lzf length mismatch: want %d got %d", originalLen, n)
	}
	return string(dst), nil
}

// zstdDecompress decompresses a ZSTD-framed compressed blob.
func zstdDecompress(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("rdbread: zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("rdbread: zstd decompress: %w", err)
	}
	return out, nil
}

// lz4Decompress decompresses an LZ4-framed compressed blob.
func lz4Decompress(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("rdbread: lz4 decompress: %w", err)
	}
	return out, nil
}
