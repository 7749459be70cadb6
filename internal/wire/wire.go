// Package wire defines the on-the-wire message envelope and its tags,
// and the "<destaddr> <json-object>" framing described by spec.md §6.
package wire

import (
	"strings"

	"github.com/reactormesh/devrt/internal/value"
)

// Tag identifies the kind of a wire message's envelope.
type Tag string

const (
	TagEventOccur  Tag = "EVENT_OCCUR"
	TagPropAdd     Tag = "PROP_ADD"
	TagPropSet     Tag = "PROP_SET"
	TagPropGet     Tag = "PROP_GET"
	TagFuncCall    Tag = "FUNC_CALL"
	TagFuncCallRet Tag = "FUNC_CALL_RET"
	TagReply       Tag = "REPLY"
)

// Message is a decoded wire envelope: a tag, an opaque argument value,
// and (for everything except REPLY) a source device descriptor.
type Message struct {
	Tag Tag
	Arg value.Value
	Src value.Value // Map{"dev":String, "addr":String}, Null for REPLY
}

// Frame is the parsed "<destaddr> <json-object>" line read off a
// connection: the destination address string and the raw envelope text,
// not yet decoded into a Message.
type Frame struct {
	DestAddr string
	Body     string
}

// ParseFrame splits a raw frame into its destination address and JSON
// body, matching the space-separated "<destaddr> <json-object>" framing
// of spec.md §6. DestAddr never contains whitespace (it's a "tcp://"
// URL), so splitting on the first space is unambiguous.
func ParseFrame(raw string) (Frame, bool) {
	raw = strings.TrimRight(raw, "\r\n")
	i := strings.IndexByte(raw, ' ')
	if i < 0 {
		return Frame{}, false
	}
	return Frame{DestAddr: raw[:i], Body: raw[i+1:]}, true
}

// Encode renders a frame back to its wire form.
func (f Frame) Encode() string {
	return f.DestAddr + " " + f.Body
}

// Decode parses a Frame's body into a Message using arena for any
// Cons/Map cells the argument value needs.
func Decode(body string, arena *value.Arena) (Message, error) {
	env, err := value.FromStr(body, arena)
	if err != nil {
		return Message{}, err
	}
	tag := arena.MapLookup(env, value.String("tag"))
	arg := arena.MapLookup(env, value.String("arg"))
	src := arena.MapLookup(env, value.String("src"))
	if value.Tag(tag) != value.KindString {
		return Message{}, &FormatError{Reason: "missing or non-string \"tag\" field"}
	}
	return Message{Tag: Tag(tag.StringValue()), Arg: arg, Src: src}, nil
}

// Encode renders a Message as its envelope JSON body (without the
// destination address prefix).
func (m Message) Encode(arena *value.Arena) (string, error) {
	env := arena.NewMap()
	arena.MapAdd(env, value.String("tag"), value.String(string(m.Tag)))
	arena.MapAdd(env, value.String("arg"), m.Arg)
	if !m.Src.IsNull() {
		arena.MapAdd(env, value.String("src"), m.Src)
	}
	return value.ToStr(env)
}

// FormatError reports a malformed wire envelope (valid value syntax, but
// missing or wrongly-typed required fields).
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return "wire: malformed envelope: " + e.Reason }
