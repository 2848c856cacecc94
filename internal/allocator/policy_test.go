package allocator

import "testing"

func TestPolicy_ClosureEnvAlwaysEscapes(t *testing.T) {
	p := NewPolicy(SystemAllocatorKind)
	if !p.Escapes(SiteClosureEnv, EscapeInfo{}) {
		t.Fatalf("a closure environment must always be treated as escaping")
	}
	if !p.Escapes(SiteClosureEnv, EscapeInfo{ReturnedOrStored: false, PassedToCall: false}) {
		t.Fatalf("closure escape does not depend on the site facts")
	}
}

func TestPolicy_ConstructorEscapesOnlyWhenObserved(t *testing.T) {
	p := NewPolicy(SystemAllocatorKind)

	cases := []struct {
		name string
		info EscapeInfo
		want bool
	}{
		{"discarded", EscapeInfo{}, false},
		{"returned or stored", EscapeInfo{ReturnedOrStored: true}, true},
		{"passed to a call", EscapeInfo{PassedToCall: true}, true},
		{"both", EscapeInfo{ReturnedOrStored: true, PassedToCall: true}, true},
	}
	for _, tc := range cases {
		if got := p.Escapes(SiteConstructor, tc.info); got != tc.want {
			t.Fatalf("%s: Escapes = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDefaultPolicy_RecordsSystemAllocator(t *testing.T) {
	if DefaultPolicy.Kind != SystemAllocatorKind {
		t.Fatalf("default policy kind = %v, want %v", DefaultPolicy.Kind, SystemAllocatorKind)
	}
	if SystemAllocatorKind.String() != "system" || ArenaAllocatorKind.String() != "arena" || PoolAllocatorKind.String() != "pool" {
		t.Fatalf("unexpected AllocatorKind names")
	}
}
