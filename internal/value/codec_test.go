package value

import "testing"

func TestToStrPrimitives(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Null(), "null"},
		{Int(42), "42"},
		{Int(-7), "-7"},
		{Float(3.5), "3.50"},
		{String("hello"), `"hello"`},
	}
	for _, c := range cases {
		got, err := ToStr(c.v)
		if err != nil {
			t.Fatalf("ToStr(%v): %v", c.v, err)
		}
		if got != c.want {
			t.Errorf("ToStr(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestRoundTripPrimitives(t *testing.T) {
	a := NewArena()
	for _, v := range []Value{Null(), Int(0), Int(-99), String("dev1"), String("")} {
		s, err := ToStr(v)
		if err != nil {
			t.Fatalf("ToStr(%v): %v", v, err)
		}
		back, err := FromStr(s, a)
		if err != nil {
			t.Fatalf("FromStr(%q): %v", s, err)
		}
		if !Eq(v, back) {
			t.Errorf("round trip %v -> %q -> %v, not equal", v, s, back)
		}
	}
}

func TestFromStrBareIntegralPromotion(t *testing.T) {
	a := NewArena()
	v, err := FromStr("123", a)
	if err != nil {
		t.Fatal(err)
	}
	if Tag(v) != KindInt || v.IntValue() != 123 {
		t.Fatalf("bare integral token parsed as %v, want Int(123)", v)
	}

	v, err = FromStr("abc", a)
	if err != nil {
		t.Fatal(err)
	}
	if Tag(v) != KindString || v.StringValue() != "abc" {
		t.Fatalf("non-integral bare token parsed as %v, want String(\"abc\")", v)
	}
}

func TestFromStrObjectCommaAndColonOptional(t *testing.T) {
	a := NewArena()
	withCommas, err := FromStr(`{"name": "vol", "retid": 7}`, a)
	if err != nil {
		t.Fatal(err)
	}
	if got := a.MapLookup(withCommas, String("name")); !Eq(got, String("vol")) {
		t.Fatalf("name = %v, want String(vol)", got)
	}
	if got := a.MapLookup(withCommas, String("retid")); !Eq(got, Int(7)) {
		t.Fatalf("retid = %v, want Int(7)", got)
	}

	bare, err := FromStr(`{"name" "vol" "retid" 7}`, a)
	if err != nil {
		t.Fatal(err)
	}
	if got := a.MapLookup(bare, String("retid")); !Eq(got, Int(7)) {
		t.Fatalf("retid without separators = %v, want Int(7)", got)
	}
}

func TestArrayParsesInReverseSourceOrder(t *testing.T) {
	a := NewArena()
	v, err := FromStr("[ 1 2 3 ]", a)
	if err != nil {
		t.Fatal(err)
	}
	var got []int32
	cur := v
	for Tag(cur) == KindCons {
		got = append(got, a.ConsCar(cur).IntValue())
		cur = a.ConsCdr(cur)
	}
	want := []int32{3, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d = %d, want %d (array must parse in reverse source order)", i, got[i], want[i])
		}
	}
}

func TestToStrMapAndArrayGrammar(t *testing.T) {
	a := NewArena()
	arr := a.Cons(Int(1), a.Cons(Int(2), Null()))
	s, err := ToStr(arr)
	if err != nil {
		t.Fatal(err)
	}
	if s != "[ 1 2 ]" {
		t.Fatalf("array ToStr = %q, want %q", s, "[ 1 2 ]")
	}

	m := a.NewMap()
	a.MapAdd(m, String("vol"), Int(7))
	s, err = ToStr(m)
	if err != nil {
		t.Fatal(err)
	}
	if s != `{ "vol": 7 }` {
		t.Fatalf("map ToStr = %q, want %q", s, `{ "vol": 7 }`)
	}
}

func TestToStrDetectsCycle(t *testing.T) {
	a := NewArena()
	cons := a.NewCons()
	a.ConsSetCar(cons, Int(1))
	a.ConsSetCdr(cons, cons) // self-cycle via CONS_SETCDR
	_, err := ToStr(cons)
	if err == nil {
		t.Fatal("expected cycle detection error, got nil")
	}
}

func TestFromStrStringTooLong(t *testing.T) {
	a := NewArena()
	long := make([]byte, stringMaxBytes+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := FromStr(`"`+string(long)+`"`, a)
	if err == nil {
		t.Fatal("expected error for over-long string, got nil")
	}
}

func TestFromStrMalformedSyntax(t *testing.T) {
	a := NewArena()
	if _, err := FromStr("{", a); err == nil {
		t.Fatal("expected syntax error for unterminated object")
	}
	if _, err := FromStr("[1 2", a); err == nil {
		t.Fatal("expected syntax error for unterminated array")
	}
}
