// Package rdbread implements the pluggable RDB decoder capability spec.md
// treats as an external collaborator: it turns the RDB byte stream a
// reader worker reads off the source connection (teeing a copy into the
// SrcNode's rdb.data queue) into a sequence of typed Entry values, decoding the handful of value/container encodings a
// real RDB payload uses (plain, ziplist, listpack, intset, quicklist) plus
// the LZF/LZ4/ZSTD compressed-blob framing some sources wrap around them.
package rdbread

// Opcodes a byte in the RDB stream may carry instead of a data type.
const (
	OpcodeExpireMS         = 0xFC
	OpcodeExpireSec        = 0xFD
	OpcodeSelectDB         = 0xFE
	OpcodeEOF              = 0xFF
	OpcodeAux              = 0xFA
	OpcodeCompressedZSTD   = 0xC9 // ZSTD-compressed blob start
	OpcodeCompressedLZ4    = 0xCA // LZ4-compressed blob start
	OpcodeCompressedEnd    = 0xCB // compressed blob end, resume outer stream
)

// Value type tags, from the Redis RDB format.
const (
	TypeString = 0
	TypeList   = 1
	TypeSet    = 2
	TypeZSet   = 3
	TypeHash   = 4
	TypeZSet2  = 5

	TypeHashZipmap  = 9
	TypeListZiplist = 10
	TypeSetIntset   = 11
	TypeZSetZiplist = 12
	TypeHashZiplist = 13

	TypeListQuicklist  = 14
	TypeListQuicklist2 = 17

	TypeStreamListpacks  = 15
	TypeStreamListpacks2 = 19
	TypeStreamListpacks3 = 21

	TypeHashZiplistEx = 16
	TypeZSetListpack  = 18
	TypeHashListpack  = 20
	TypeSetListpack   = 22
)

// String sub-encodings (returned as the "special" case of readLength).
const (
	EncInt8  = 0
	EncInt16 = 1
	EncInt32 = 2
	EncLZF   = 3
)

const (
	quicklistContainerPlain  = 1
	quicklistContainerPacked = 2
)

// Entry is one decoded key/value pair plus its metadata.
type Entry struct {
	Key      string
	Type     byte
	Value    any // *StringValue, *HashValue, *ListValue, *SetValue, *ZSetValue, *StreamValue
	ExpireMs int64
	DbIndex  int
}

// Expired reports whether the entry's TTL (if any) has already elapsed as
// of nowMs (an absolute Unix millisecond timestamp supplied by the
// caller, since this package never reads the clock itself).
func (e *Entry) Expired(nowMs int64) bool {
	return e.ExpireMs != 0 && e.ExpireMs < nowMs
}

type StringValue struct{ Value string }

type HashValue struct{ Fields map[string]string }

type ListValue struct{ Elements []string }

type SetValue struct{ Members []string }

type ZSetValue struct{ Members []ZSetMember }

type ZSetMember struct {
	Member string
	Score  float64
}

type StreamValue struct {
	Messages []StreamMessage
	Length   uint64
	LastID   string
}

type StreamMessage struct {
	ID     string
	Fields map[string]string
}
