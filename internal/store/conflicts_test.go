package store

import (
	"os"
	"path/filepath"
	"testing"
)

// TestCanonicalName covers the sync-conflict suffix patterns seen from
// common sync clients.
func TestCanonicalName(t *testing.T) {
	cases := []struct {
		in       string
		want     string
		suffixed bool
	}{
		{"memo.json", "memo.json", false},
		{"memo (1).json", "memo.json", true},
		{"memo (12).json", "memo.json", true},
		{"memo (conflicted copy 2025-08-30).json", "memo.json", true},
		{"memo (bob's conflicted copy 2025-08-30).json", "memo.json", true},
		{"memo (Conflicted Copy).txt", "memo.txt", true},
		{"meeting (notes).json", "meeting (notes).json", false},
		{"memo.txt", "memo.txt", false},
	}

	for _, tc := range cases {
		got, suffixed := CanonicalName(tc.in)
		if got != tc.want || suffixed != tc.suffixed {
			t.Errorf("CanonicalName(%q) = (%q, %v), want (%q, %v)", tc.in, got, suffixed, tc.want, tc.suffixed)
		}
	}
}

// TestCleanDuplicatesPromotes renames the duplicate when the canonical file
// is missing.
func TestCleanDuplicatesPromotes(t *testing.T) {
	s := newTestStore(t)

	dup := filepath.Join(s.Dir(), "memo (1).json")
	if err := os.WriteFile(dup, []byte(`{"audioFileName":"memo.m4a","status":"pending"}`), 0644); err != nil {
		t.Fatalf("write dup: %v", err)
	}

	if touched := s.CleanDuplicates(); touched != 1 {
		t.Fatalf("CleanDuplicates() = %d, want 1", touched)
	}
	if _, err := os.Stat(dup); !os.IsNotExist(err) {
		t.Fatal("duplicate still present after promotion")
	}
	meta, err := s.Load("memo.m4a")
	if err != nil || meta == nil {
		t.Fatalf("canonical record missing after promotion: %v", err)
	}
}

// TestCleanDuplicatesDeletes removes the duplicate when the canonical file
// exists.
func TestCleanDuplicatesDeletes(t *testing.T) {
	s := newTestStore(t)

	canonical := filepath.Join(s.Dir(), "memo.json")
	dup := filepath.Join(s.Dir(), "memo (conflicted copy 2025-08-30).json")
	if err := os.WriteFile(canonical, []byte(`{"audioFileName":"memo.m4a","status":"completed"}`), 0644); err != nil {
		t.Fatalf("write canonical: %v", err)
	}
	if err := os.WriteFile(dup, []byte(`{"audioFileName":"memo.m4a","status":"transcribing"}`), 0644); err != nil {
		t.Fatalf("write dup: %v", err)
	}

	if touched := s.CleanDuplicates(); touched != 1 {
		t.Fatalf("CleanDuplicates() = %d, want 1", touched)
	}
	if _, err := os.Stat(dup); !os.IsNotExist(err) {
		t.Fatal("duplicate still present")
	}

	meta, err := s.Load("memo.m4a")
	if err != nil || meta == nil {
		t.Fatalf("canonical record gone: %v", err)
	}
	if meta.Status != "completed" {
		t.Fatalf("canonical record overwritten, status = %s", meta.Status)
	}
}

// TestCleanDuplicatesLeavesAudioAlone verifies only metadata and transcript
// files are swept.
func TestCleanDuplicatesLeavesAudioAlone(t *testing.T) {
	s := newTestStore(t)

	audio := filepath.Join(s.Dir(), "memo (1).m4a")
	if err := os.WriteFile(audio, []byte("bytes"), 0644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	if touched := s.CleanDuplicates(); touched != 0 {
		t.Fatalf("CleanDuplicates() = %d, want 0", touched)
	}
	if _, err := os.Stat(audio); err != nil {
		t.Fatalf("audio file touched: %v", err)
	}
}
