package search

import "testing"

func TestParseQueryNamespaceAndNegation(t *testing.T) {
	terms := ParseQuery("language:chinese -artist:mameroku tag")

	if len(terms) != 3 {
		t.Fatalf("got %d terms, want 3: %+v", len(terms), terms)
	}

	if terms[0].namespace != "language" || terms[0].value != "chinese" || terms[0].negative {
		t.Errorf("term 0 = %+v, want {language chinese false}", terms[0])
	}
	if terms[1].namespace != "artist" || terms[1].value != "mameroku" || !terms[1].negative {
		t.Errorf("term 1 = %+v, want {artist mameroku true}", terms[1])
	}
	if terms[2].namespace != defaultNamespace || terms[2].value != "tag" || terms[2].negative {
		t.Errorf("term 2 = %+v, want {%s tag false}", terms[2], defaultNamespace)
	}
}

func TestParseQueryEmpty(t *testing.T) {
	if terms := ParseQuery("   "); len(terms) != 0 {
		t.Errorf("ParseQuery(whitespace) = %+v, want empty", terms)
	}
	if terms := ParseQuery(""); len(terms) != 0 {
		t.Errorf("ParseQuery(\"\") = %+v, want empty", terms)
	}
}

func TestIntersectPreservesFirstListOrder(t *testing.T) {
	a := []int{50, 10, 30, 20}
	b := []int{10, 20, 99}

	got := intersect(a, b)
	want := []int{10, 20}
	if !intSliceEqual(got, want) {
		t.Errorf("intersect(%v, %v) = %v, want %v", a, b, got, want)
	}
}

func TestSubtractRemovesNegativeTermHits(t *testing.T) {
	a := []int{50, 10, 30, 20}
	b := []int{10, 99}

	got := subtract(a, b)
	want := []int{50, 30, 20}
	if !intSliceEqual(got, want) {
		t.Errorf("subtract(%v, %v) = %v, want %v", a, b, got, want)
	}
}

// TestResolveIDsCombinator mirrors the combination step ResolveIDs applies
// for spec §8 oracle scenario #5, "language:chinese -artist:mameroku": a
// single positive term's posting is the starting result, then the negative
// term's posting is subtracted, preserving the positive posting's
// popularity order. It runs that step on fixed postings and does not call
// ResolveIDs itself, which needs the network.
func TestResolveIDsCombinator(t *testing.T) {
	positive := []int{300, 120, 80, 45}
	negative := []int{120}

	result := positive
	result = subtract(result, negative)

	want := []int{300, 80, 45}
	if !intSliceEqual(result, want) {
		t.Errorf("combinator result = %v, want %v", result, want)
	}
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
