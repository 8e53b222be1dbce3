package blocklist

import "testing"

func TestPairKey_OrderIndependent(t *testing.T) {
	if PairKey("alice", "bob") != PairKey("bob", "alice") {
		t.Error("pair key must be identical regardless of argument order")
	}
	if PairKey("alice", "bob") != "alice:bob" {
		t.Errorf("unexpected pair key: %s", PairKey("alice", "bob"))
	}
}

func TestPairKey_DistinctPairs(t *testing.T) {
	if PairKey("alice", "bob") == PairKey("alice", "carol") {
		t.Error("different pairs should produce different keys")
	}
}
