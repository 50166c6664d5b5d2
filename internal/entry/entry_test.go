package entry

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func sampleEntry() *Entry {
	return &Entry{
		Tree:    "sha256:root",
		Parents: []ID{"sha256:b", "sha256:a"},
		Subtrees: map[string]SubtreeData{
			"data": {Parents: []ID{"sha256:p2", "sha256:p1"}, Data: `{"k":"v"}`},
		},
		Sig: SigInfo{Key: NewDirectSigKey("device1")},
	}
}

func TestIDDeterministic(t *testing.T) {
	e1 := sampleEntry()
	e2 := sampleEntry()

	id1, err := e1.ID()
	if err != nil {
		t.Fatalf("id1: %v", err)
	}
	id2, err := e2.ID()
	if err != nil {
		t.Fatalf("id2: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected equal ids, got %s != %s", id1, id2)
	}
}

func TestIDIgnoresParentOrder(t *testing.T) {
	e1 := sampleEntry()
	e2 := sampleEntry()
	e2.Parents = []ID{"sha256:a", "sha256:b"} // reversed

	id1, _ := e1.ID()
	id2, _ := e2.ID()
	if id1 != id2 {
		t.Fatalf("parent order should not affect id: %s != %s", id1, id2)
	}
}

func TestIDChangesWithContent(t *testing.T) {
	e1 := sampleEntry()
	e2 := sampleEntry()
	e2.Subtrees["data"] = SubtreeData{Parents: []ID{"sha256:p1"}, Data: `{"k":"changed"}`}

	id1, _ := e1.ID()
	id2, _ := e2.ID()
	if id1 == id2 {
		t.Fatalf("expected different ids for different content")
	}
}

func TestIDExcludesSignature(t *testing.T) {
	e1 := sampleEntry()
	e2 := sampleEntry()
	e2.Sig.Sig = "deadbeef=="

	id1, _ := e1.ID()
	id2, _ := e2.ID()
	if id1 != id2 {
		t.Fatalf("signature bytes must not affect id: %s != %s", id1, id2)
	}
}

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	e := sampleEntry()
	if _, err := e.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := e.VerifySignature(pub)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid signature")
	}

	// Invariant 9: flipping a signed byte invalidates the signature.
	e.Parents = append(e.Parents, "sha256:extra")
	ok, err = e.VerifySignature(pub)
	if err != nil {
		t.Fatalf("verify after mutation: %v", err)
	}
	if ok {
		t.Fatalf("expected signature to be invalidated by content change")
	}
}

func TestInTree(t *testing.T) {
	root := &Entry{Tree: "", Parents: nil}
	rootID, _ := root.ID()

	ok, err := root.InTree(rootID)
	if err != nil || !ok {
		t.Fatalf("root entry should be in its own tree: ok=%v err=%v", ok, err)
	}

	child := &Entry{Tree: rootID, Parents: []ID{rootID}}
	ok, err = child.InTree(rootID)
	if err != nil || !ok {
		t.Fatalf("child entry should be in tree %s: ok=%v err=%v", rootID, ok, err)
	}

	ok, err = child.InTree("sha256:other")
	if err != nil || ok {
		t.Fatalf("child entry should not be in unrelated tree")
	}
}

func TestHeightIncremental(t *testing.T) {
	s := HeightIncremental
	if got := s.NextHeight(nil, 0); got != 1 {
		t.Fatalf("root height = %d, want 1", got)
	}
	if got := s.NextHeight([]int64{3, 5, 2}, 0); got != 6 {
		t.Fatalf("height = %d, want 6", got)
	}
}

func TestHeightTimestampMonotonic(t *testing.T) {
	s := HeightTimestamp
	if got := s.NextHeight([]int64{10}, 5); got != 11 {
		t.Fatalf("non-advancing clock should fall back to max+1, got %d", got)
	}
	if got := s.NextHeight([]int64{10}, 20); got != 20 {
		t.Fatalf("advancing clock should be used, got %d", got)
	}
}
