package abi

import "testing"

func TestNewRegistry_DeclaresCoreExterns(t *testing.T) {
	r := NewRegistry()
	for _, sym := range []string{
		"rt_malloc", "rt_realloc", "rt_free",
		"rt_array_new", "rt_array_push", "rt_array_get", "rt_array_set", "rt_array_length",
		"rt_string_concat", "rt_string_length", "rt_string_from_int", "rt_string_from_float", "rt_string_eq",
		"rt_math_sqrt", "rt_math_floor", "rt_math_ceil", "rt_math_pow",
		"rt_thread_spawn", "rt_thread_join", "rt_mutex_new", "rt_mutex_lock", "rt_mutex_unlock",
		"rt_channel_new", "rt_channel_send", "rt_channel_recv",
		"rt_arc_retain", "rt_arc_release",
	} {
		if _, ok := r.Lookup(sym); !ok {
			t.Fatalf("expected extern %q to be declared", sym)
		}
	}
}

func TestRegistry_Lookup_MissingSymbol(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("rt_does_not_exist"); ok {
		t.Fatalf("expected unknown symbol to be absent")
	}
}

func TestRegistry_MayFail(t *testing.T) {
	r := NewRegistry()
	get, ok := r.Lookup("rt_array_get")
	if !ok {
		t.Fatalf("expected rt_array_get to be declared")
	}
	if !get.MayFail {
		t.Fatalf("expected rt_array_get to be flagged MayFail (bounds-checked, §4.14)")
	}

	malloc, ok := r.Lookup("rt_malloc")
	if !ok {
		t.Fatalf("expected rt_malloc to be declared")
	}
	if malloc.MayFail {
		t.Fatalf("rt_malloc should not be flagged MayFail")
	}
}

func TestRegistry_Resolve_StdlibMapping(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		receiver, method, wantSymbol string
	}{
		{"Array", "push", "rt_array_push"},
		{"Array", "length", "rt_array_length"},
		{"Array", "new", "rt_array_new"},
		{"String", "length", "rt_string_length"},
		{"Math", "sqrt", "rt_math_sqrt"},
		{"Math", "pow", "rt_math_pow"},
		{"Thread", "spawn", "rt_thread_spawn"},
		{"Mutex", "lock", "rt_mutex_lock"},
	}
	for _, c := range cases {
		sym, ok := r.Resolve(c.receiver, c.method)
		if !ok {
			t.Fatalf("expected a mapping for (%s, %s)", c.receiver, c.method)
		}
		if sym != c.wantSymbol {
			t.Fatalf("(%s, %s): got symbol %q, want %q", c.receiver, c.method, sym, c.wantSymbol)
		}
	}
}

func TestRegistry_Resolve_UnknownReceiverMethod(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Resolve("Array", "frobnicate"); ok {
		t.Fatalf("expected no mapping for an unknown method")
	}
	if _, ok := r.Resolve("Unknown", "anything"); ok {
		t.Fatalf("expected no mapping for an unknown receiver")
	}
}

func TestRegistry_Externs_MatchesAll(t *testing.T) {
	r := NewRegistry()
	all := r.All()
	externs := r.Externs()
	if len(all) != len(externs) {
		t.Fatalf("All() returned %d externs, Externs() (mir.StdlibMapper view) returned %d", len(all), len(externs))
	}
	seen := make(map[string]bool, len(externs))
	for _, e := range externs {
		seen[e.Symbol] = true
	}
	for _, e := range all {
		if !seen[e.Symbol] {
			t.Fatalf("Externs() missing symbol %q present in All()", e.Symbol)
		}
	}
}
