package keys

import "testing"

func TestItemAndTagIDsNeverCollide(t *testing.T) {
	cases := []struct{ ns, a string }{
		{"ns1", "same"},
		{"", "same"},
	}
	for _, tc := range cases {
		if ItemID(tc.ns, tc.a) == TagID(tc.ns, tc.a) {
			t.Fatalf("item id collided with tag id for ns=%q key=%q", tc.ns, tc.a)
		}
	}
}

func TestIDsDistinctAcrossNamespaces(t *testing.T) {
	a := ItemID("ns1", "k")
	b := ItemID("ns2", "k")
	if a == b {
		t.Fatalf("expected distinct ids across namespaces, got %q == %q", a, b)
	}
}

func TestShardDeterministicAndStable(t *testing.T) {
	id := ItemID("ns", "hello")
	aa1, bb1, tail1 := Shard(id)
	aa2, bb2, tail2 := Shard(id)
	if aa1 != aa2 || bb1 != bb2 || tail1 != tail2 {
		t.Fatalf("Shard not deterministic: (%s,%s,%s) vs (%s,%s,%s)", aa1, bb1, tail1, aa2, bb2, tail2)
	}
	if len(aa1) != 2 || len(bb1) != 2 || len(tail1) < 16 {
		t.Fatalf("unexpected shard shape: aa=%q bb=%q tail=%q", aa1, bb1, tail1)
	}
}

func TestLinkNameLength(t *testing.T) {
	if got := len(LinkName("x")); got != 20 {
		t.Fatalf("LinkName length = %d, want 20", got)
	}
}

func TestURLEncodeRoundTrip(t *testing.T) {
	id := ItemID("ns with space", "key/with/slashes")
	enc := URLEncodeID(id)
	dec, err := URLDecodeID(enc)
	if err != nil {
		t.Fatalf("URLDecodeID: %v", err)
	}
	if dec != id {
		t.Fatalf("round trip mismatch: got %q want %q", dec, id)
	}
}
