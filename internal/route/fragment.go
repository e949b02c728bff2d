package route

import (
	"rmtcore/internal/node"
	"rmtcore/internal/respio"
)

// Fragment routes m to the target node(s) responsible for its keys. For
// KindSingleKey commands this is always exactly one node. A
// KindMultiKeyIndependent (MSET-style) or KindMultiKeyFlat (DEL/MGET-style)
// command is re-encoded per owning target, also when all its keys land on
// one node, as an independent command carrying only that target's keys
// (spec.md §4.E/§9: "fragments multi-key commands across target shards"),
// each tagged with the parent's FragSeq and a Peer link back to the
// original. The writer sends each fragment on its own; fragment replies
// are not merged. Admin/no-forward commands (PING, REPLCONF, the already-consumed
// SELECT) carry no keys and are not fragmentable; callers route those
// directly without calling Fragment.
func Fragment(g *Group, m *respio.Msg) (map[*node.TgtNode]*respio.Msg, error) {
	switch m.Kind {
	case respio.KindSingleKey:
		tgt, err := g.Keyed(m.Keys[0])
		if err != nil {
			return nil, err
		}
		return map[*node.TgtNode]*respio.Msg{tgt: m}, nil

	case respio.KindMultiKeyIndependent:
		return fragmentIndependent(g, m)

	case respio.KindMultiKeyFlat:
		return fragmentFlat(g, m)

	default:
		return nil, nil
	}
}

// fragmentIndependent splits an MSET-style command (argv: cmd, k1, v1, k2,
// v2, ...) into one sub-command per owning target, preserving each
// target's keys in original relative order.
func fragmentIndependent(g *Group, m *respio.Msg) (map[*node.TgtNode]*respio.Msg, error) {
	type kv struct{ key, val []byte }
	byTarget := map[*node.TgtNode][]kv{}
	order := make([]*node.TgtNode, 0, len(m.Keys))

	rest := m.Args[1:]
	for i, key := range m.Keys {
		var val []byte
		if 2*i+1 < len(rest) {
			val = rest[2*i+1]
		}
		tgt, err := g.Keyed(key)
		if err != nil {
			return nil, err
		}
		if _, seen := byTarget[tgt]; !seen {
			order = append(order, tgt)
		}
		byTarget[tgt] = append(byTarget[tgt], kv{key, val})
	}

	out := make(map[*node.TgtNode]*respio.Msg, len(order))
	for _, tgt := range order {
		pairs := byTarget[tgt]
		args := make([][]byte, 0, 1+2*len(pairs))
		keys := make([][]byte, 0, len(pairs))
		args = append(args, m.Args[0])
		for _, p := range pairs {
			args = append(args, p.key, p.val)
			keys = append(keys, p.key)
		}
		out[tgt] = newFragment(m, args, keys)
	}
	return out, nil
}

// fragmentFlat splits a DEL/MGET-style command (argv: cmd, k1, k2, ...)
// into one sub-command per owning target.
func fragmentFlat(g *Group, m *respio.Msg) (map[*node.TgtNode]*respio.Msg, error) {
	byTarget := map[*node.TgtNode][][]byte{}
	order := make([]*node.TgtNode, 0, len(m.Keys))

	for _, key := range m.Keys {
		tgt, err := g.Keyed(key)
		if err != nil {
			return nil, err
		}
		if _, seen := byTarget[tgt]; !seen {
			order = append(order, tgt)
		}
		byTarget[tgt] = append(byTarget[tgt], key)
	}

	out := make(map[*node.TgtNode]*respio.Msg, len(order))
	for _, tgt := range order {
		keys := byTarget[tgt]
		args := make([][]byte, 0, 1+len(keys))
		args = append(args, m.Args[0])
		args = append(args, keys...)
		out[tgt] = newFragment(m, args, keys)
	}
	return out, nil
}

func newFragment(parent *respio.Msg, args, keys [][]byte) *respio.Msg {
	frag := respio.AcquireMsg(true)
	frag.Cmd = parent.Cmd
	frag.Kind = parent.Kind
	frag.Args = args
	frag.Keys = keys
	frag.FragSeq = parent.FragSeq
	frag.Peer = parent
	return frag
}
