package value

import "testing"

func TestEqPrimitives(t *testing.T) {
	cases := []struct {
		name string
		u, v Value
		want bool
	}{
		{"null==null", Null(), Null(), true},
		{"int==int same", Int(7), Int(7), true},
		{"int==int diff", Int(7), Int(8), false},
		{"string==string same", String("vol"), String("vol"), true},
		{"string==string diff", String("vol"), String("amp"), false},
		{"int!=string", Int(7), String("7"), false},
		{"float==float", Float(1.5), Float(1.5), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Eq(c.u, c.v); got != c.want {
				t.Errorf("Eq(%v, %v) = %v, want %v", c.u, c.v, got, c.want)
			}
		})
	}
}

func TestCompoundNeverEq(t *testing.T) {
	a := NewArena()
	m1 := a.NewMap()
	m2 := a.NewMap()
	if Eq(m1, m2) {
		t.Fatal("two distinct maps must not compare equal")
	}
	if Eq(m1, m1) {
		t.Fatal("compound kinds are never Eq, even to themselves, per spec")
	}
}

func TestArenaConsAccessors(t *testing.T) {
	a := NewArena()
	cons := a.Cons(Int(1), Null())
	if got := a.ConsCar(cons); !Eq(got, Int(1)) {
		t.Fatalf("car = %v, want Int(1)", got)
	}
	a.ConsSetCdr(cons, Int(2))
	if got := a.ConsCdr(cons); !Eq(got, Int(2)) {
		t.Fatalf("cdr after SetCdr = %v, want Int(2)", got)
	}
}

func TestMapLookupLastWriteWins(t *testing.T) {
	a := NewArena()
	m := a.NewMap()
	a.MapAdd(m, String("vol"), Int(1))
	a.MapAdd(m, String("vol"), Int(2))
	got := a.MapLookup(m, String("vol"))
	if !Eq(got, Int(2)) {
		t.Fatalf("lookup after re-add = %v, want Int(2) (most recent binding wins)", got)
	}
}

func TestMapLookupMiss(t *testing.T) {
	a := NewArena()
	m := a.NewMap()
	got := a.MapLookup(m, String("nope"))
	if !got.IsNull() {
		t.Fatalf("lookup miss = %v, want Null", got)
	}
}
