package writer

import (
	"strconv"

	"rmtcore/internal/rdbread"
)

// buildCommands translates one decoded RDB entry into the target command
// sequence that reproduces it: the value-bearing command(s) plus a
// trailing PEXPIREAT if the entry carries a TTL. Unknown value types are
// skipped rather than erroring, since a source newer than this decoder
// should not abort an otherwise-complete migration over one unsupported
// key type.
func buildCommands(e *rdbread.Entry) [][]string {
	var cmds [][]string
	switch v := e.Value.(type) {
	case *rdbread.StringValue:
		cmds = append(cmds, []string{"SET", e.Key, v.Value})

	case *rdbread.HashValue:
		if len(v.Fields) == 0 {
			break
		}
		args := make([]string, 0, 2+2*len(v.Fields))
		args = append(args, "HSET", e.Key)
		for f, val := range v.Fields {
			args = append(args, f, val)
		}
		cmds = append(cmds, args)

	case *rdbread.ListValue:
		if len(v.Elements) == 0 {
			break
		}
		args := make([]string, 0, 2+len(v.Elements))
		args = append(args, "RPUSH", e.Key)
		args = append(args, v.Elements...)
		cmds = append(cmds, args)

	case *rdbread.SetValue:
		if len(v.Members) == 0 {
			break
		}
		args := make([]string, 0, 2+len(v.Members))
		args = append(args, "SADD", e.Key)
		args = append(args, v.Members...)
		cmds = append(cmds, args)

	case *rdbread.ZSetValue:
		if len(v.Members) == 0 {
			break
		}
		args := make([]string, 0, 2+2*len(v.Members))
		args = append(args, "ZADD", e.Key)
		for _, m := range v.Members {
			args = append(args, strconv.FormatFloat(m.Score, 'g', -1, 64), m.Member)
		}
		cmds = append(cmds, args)

	case *rdbread.StreamValue:
		for _, msg := range v.Messages {
			args := make([]string, 0, 3+2*len(msg.Fields))
			args = append(args, "XADD", e.Key, msg.ID)
			for f, val := range msg.Fields {
				args = append(args, f, val)
			}
			cmds = append(cmds, args)
		}

	default:
		return nil
	}

	if e.ExpireMs > 0 && len(cmds) > 0 {
		cmds = append(cmds, []string{"PEXPIREAT", e.Key, strconv.FormatInt(e.ExpireMs, 10)})
	}
	return cmds
}
