package value

import "github.com/davecgh/go-spew/spew"

// dumpNode is a plain-struct mirror of a Value used only for debug
// dumping: spew.Sdump on a Value directly would just show the private
// kind/handle/owner fields, which is useless for diagnosing a VM fault or
// a dropped message. Dump walks Cons/Map recursively via the owning Arena
// and hands spew a tree it can render meaningfully, bailing out on
// cycles instead of hanging.
type dumpNode struct {
	Kind   string
	Int    int32     `json:",omitempty"`
	Float  float32   `json:",omitempty"`
	Str    string    `json:",omitempty"`
	First  *dumpNode `json:",omitempty"`
	Second *dumpNode `json:",omitempty"`
	Elems  []*dumpNode `json:",omitempty"`
	Cyclic bool      `json:",omitempty"`
}

// Dump renders v as a human-readable tree via go-spew, for use by the
// default logger when logging a VM fault or a malformed message at debug
// level.
func Dump(v Value) string {
	return spew.Sdump(toDumpNode(v, map[uint32]bool{}))
}

func toDumpNode(v Value, visited map[uint32]bool) *dumpNode {
	switch v.kind {
	case KindNull:
		return &dumpNode{Kind: "null"}
	case KindInt:
		return &dumpNode{Kind: "int", Int: v.i}
	case KindFloat:
		return &dumpNode{Kind: "float", Float: v.f}
	case KindString:
		return &dumpNode{Kind: "string", Str: v.s}
	case KindPair:
		return &dumpNode{
			Kind:   "pair",
			First:  toDumpNode(v.pair.first, visited),
			Second: toDumpNode(v.pair.second, visited),
		}
	case KindCons:
		n := &dumpNode{Kind: "cons"}
		cur := v
		for cur.kind == KindCons {
			if visited[cur.handle] {
				n.Cyclic = true
				break
			}
			visited[cur.handle] = true
			n.Elems = append(n.Elems, toDumpNode(cur.owner.ConsCar(cur), visited))
			cur = cur.owner.ConsCdr(cur)
		}
		return n
	case KindMap:
		n := &dumpNode{Kind: "map"}
		bindings := v.owner.MapBindings(v)
		cur := bindings
		for cur.kind == KindCons {
			if visited[cur.handle] {
				n.Cyclic = true
				break
			}
			visited[cur.handle] = true
			n.Elems = append(n.Elems, toDumpNode(cur.owner.ConsCar(cur), visited))
			cur = cur.owner.ConsCdr(cur)
		}
		return n
	default:
		return &dumpNode{Kind: "unknown"}
	}
}
