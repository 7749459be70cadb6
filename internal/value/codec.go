package value

import (
	"strconv"
	"strings"
)

// Codec constants mirror the limits documented for the original
// tokenizer/printer: strings longer than stringMaxBytes are rejected,
// serialized output is capped at bufMaxBytes, and the token stream is
// capped at tokenMax entries.
const (
	stringMaxBytes = 1023
	bufMaxBytes    = 1 << 16 // 64KiB
	bufStartBytes  = 1 << 10 // 1KiB
	tokenMax       = 1 << 16
)

// ToStr serializes v to its textual form. Compound values (Cons/Map) are
// printed in the original runtime's minimalist grammar: arrays as
// "[ e1 e2 ... ]" (space-separated, no commas), maps as
// "{ k: v, k: v }" (comma-separated bindings, ": " between key and
// value). Serialization fails if the output would exceed 64KiB or if v
// contains a cycle (reachable via repeated CONS_SETCDR mutation).
func ToStr(v Value) (string, error) {
	var b strings.Builder
	b.Grow(bufStartBytes)
	visited := map[uint32]bool{}
	if err := printValue(&b, v, visited); err != nil {
		return "", &CodecError{Op: "ToStr", Cause: err}
	}
	if b.Len() > bufMaxBytes {
		return "", &CodecError{Op: "ToStr", Cause: ErrBufferExceeded}
	}
	return b.String(), nil
}

func printValue(b *strings.Builder, v Value, visited map[uint32]bool) error {
	if b.Len() > bufMaxBytes {
		return ErrBufferExceeded
	}
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindInt:
		b.WriteString(strconv.FormatInt(int64(v.i), 10))
	case KindFloat:
		b.WriteString(strconv.FormatFloat(float64(v.f), 'f', 2, 32))
	case KindString:
		writeQuoted(b, v.s)
	case KindPair:
		if err := printValue(b, v.pair.first, visited); err != nil {
			return err
		}
		b.WriteString(": ")
		return printValue(b, v.pair.second, visited)
	case KindCons:
		return printCons(b, v, visited)
	case KindMap:
		return printMap(b, v, visited)
	}
	return nil
}

func printCons(b *strings.Builder, v Value, visited map[uint32]bool) error {
	b.WriteString("[ ")
	cur := v
	for cur.kind == KindCons {
		if visited[cur.handle] {
			return ErrCyclicValue
		}
		visited[cur.handle] = true
		car := cur.owner.ConsCar(cur)
		if err := printValue(b, car, visited); err != nil {
			return err
		}
		b.WriteString(" ")
		cur = cur.owner.ConsCdr(cur)
	}
	b.WriteString("]")
	return nil
}

func printMap(b *strings.Builder, v Value, visited map[uint32]bool) error {
	bindings := v.owner.MapBindings(v)
	if bindings.IsNull() {
		b.WriteString("{}")
		return nil
	}
	b.WriteString("{ ")
	cur := bindings
	first := true
	for cur.kind == KindCons {
		if visited[cur.handle] {
			return ErrCyclicValue
		}
		visited[cur.handle] = true
		if !first {
			b.WriteString(", ")
		}
		first = false
		binding := cur.owner.ConsCar(cur)
		if err := printValue(b, binding, visited); err != nil {
			return err
		}
		cur = cur.owner.ConsCdr(cur)
	}
	b.WriteString(" }")
	return nil
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}

// tokenKind discriminates the small lexical alphabet FromStr needs:
// structural brackets, the optional comma/colon separators, quoted
// strings, and bare (unquoted) runs used for numbers and bareword
// primitives.
type tokenKind int

const (
	tokLBrace tokenKind = iota
	tokRBrace
	tokLBracket
	tokRBracket
	tokComma
	tokColon
	tokString
	tokBare
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits s into the token stream FromStr parses. Comma and
// colon are tokenized as independent separators rather than bound to a
// particular grammar position, which lets the parser accept both the
// original's space-separated array printing and ordinary comma-delimited
// JSON input from a wire peer with the same recursive descent.
func tokenize(s string) ([]token, error) {
	var toks []token
	runes := []rune(s)
	n := len(runes)
	for i := 0; i < n; {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			i++
		case r == '{':
			toks = append(toks, token{kind: tokLBrace})
			i++
		case r == '}':
			toks = append(toks, token{kind: tokRBrace})
			i++
		case r == '[':
			toks = append(toks, token{kind: tokLBracket})
			i++
		case r == ']':
			toks = append(toks, token{kind: tokRBracket})
			i++
		case r == ',':
			toks = append(toks, token{kind: tokComma})
			i++
		case r == ':':
			toks = append(toks, token{kind: tokColon})
			i++
		case r == '"':
			j := i + 1
			var sb strings.Builder
			closed := false
			for j < n {
				c := runes[j]
				if c == '\\' && j+1 < n {
					switch runes[j+1] {
					case '"':
						sb.WriteByte('"')
					case '\\':
						sb.WriteByte('\\')
					case 'n':
						sb.WriteByte('\n')
					default:
						sb.WriteRune(runes[j+1])
					}
					j += 2
					continue
				}
				if c == '"' {
					closed = true
					j++
					break
				}
				sb.WriteRune(c)
				j++
			}
			if !closed {
				return nil, ErrSyntax
			}
			if sb.Len() > stringMaxBytes {
				return nil, ErrStringTooLong
			}
			toks = append(toks, token{kind: tokString, text: sb.String()})
			i = j
		default:
			j := i
			for j < n {
				c := runes[j]
				if c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
					c == '{' || c == '}' || c == '[' || c == ']' ||
					c == ',' || c == ':' || c == '"' {
					break
				}
				j++
			}
			if j == i {
				return nil, ErrSyntax
			}
			toks = append(toks, token{kind: tokBare, text: string(runes[i:j])})
			i = j
		}
		if len(toks) > tokenMax {
			return nil, ErrTooManyTokens
		}
	}
	return toks, nil
}

// FromStr parses a textual value, allocating any Cons/Map cells it needs
// from arena. It accepts both the original printer's comma-less array
// grammar and ordinary comma-delimited JSON from a wire peer, since
// commas and colons are skipped as interchangeable separators rather
// than required at fixed grammar positions.
func FromStr(s string, arena *Arena) (Value, error) {
	toks, err := tokenize(s)
	if err != nil {
		return Value{}, &CodecError{Op: "FromStr", Cause: err}
	}
	v, pos, err := parseValue(toks, 0, arena)
	if err != nil {
		return Value{}, &CodecError{Op: "FromStr", Cause: err}
	}
	for pos < len(toks) {
		if !isSeparator(toks[pos].kind) {
			return Value{}, &CodecError{Op: "FromStr", Cause: ErrSyntax}
		}
		pos++
	}
	return v, nil
}

func isSeparator(k tokenKind) bool {
	return k == tokComma || k == tokColon
}

func skipSeparators(toks []token, pos int) int {
	for pos < len(toks) && isSeparator(toks[pos].kind) {
		pos++
	}
	return pos
}

func parseValue(toks []token, pos int, arena *Arena) (Value, int, error) {
	pos = skipSeparators(toks, pos)
	if pos >= len(toks) {
		return Value{}, pos, ErrSyntax
	}
	t := toks[pos]
	switch t.kind {
	case tokString:
		return String(t.text), pos + 1, nil
	case tokBare:
		if t.text == "null" {
			return Null(), pos + 1, nil
		}
		if iv, err := strconv.ParseInt(t.text, 10, 32); err == nil {
			return Int(int32(iv)), pos + 1, nil
		}
		return String(t.text), pos + 1, nil
	case tokLBracket:
		return parseArray(toks, pos+1, arena)
	case tokLBrace:
		return parseObject(toks, pos+1, arena)
	default:
		return Value{}, pos, ErrSyntax
	}
}

// parseArray builds the Cons spine in reverse source order: each parsed
// element is prepended onto the list built so far, so the head of the
// resulting Cons chain is the LAST element written in the source text.
// This preserves the original parser's documented behavior.
func parseArray(toks []token, pos int, arena *Arena) (Value, int, error) {
	list := Null()
	for {
		pos = skipSeparators(toks, pos)
		if pos >= len(toks) {
			return Value{}, pos, ErrSyntax
		}
		if toks[pos].kind == tokRBracket {
			return list, pos + 1, nil
		}
		elem, next, err := parseValue(toks, pos, arena)
		if err != nil {
			return Value{}, pos, err
		}
		pos = next
		cons := arena.NewCons()
		arena.ConsSetCar(cons, elem)
		arena.ConsSetCdr(cons, list)
		list = cons
	}
}

func parseObject(toks []token, pos int, arena *Arena) (Value, int, error) {
	m := arena.NewMap()
	for {
		pos = skipSeparators(toks, pos)
		if pos >= len(toks) {
			return Value{}, pos, ErrSyntax
		}
		if toks[pos].kind == tokRBrace {
			return m, pos + 1, nil
		}
		key, next, err := parseValue(toks, pos, arena)
		if err != nil {
			return Value{}, pos, err
		}
		pos = skipSeparators(toks, next)
		val, next2, err := parseValue(toks, pos, arena)
		if err != nil {
			return Value{}, pos, err
		}
		pos = next2
		arena.MapAdd(m, key, val)
	}
}
