package assembler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAssembler_WriteAt_PositionalWrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "out", "file.bin")

	a := New(filepath.Join(dir, "spill"))
	if err := a.PreAllocate(dest, 10); err != nil {
		t.Fatalf("PreAllocate: %v", err)
	}
	if err := a.WriteAt(dest, []byte("World"), 5); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := a.WriteAt(dest, []byte("Hello"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := a.Finalize(dest, 10); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "HelloWorld" {
		t.Fatalf("expected HelloWorld, got %q", got)
	}
}

func TestAssembler_Finalize_TruncatesPreallocationPadding(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")

	a := New(filepath.Join(dir, "spill"))
	if err := a.PreAllocate(dest, 1000); err != nil {
		t.Fatalf("PreAllocate: %v", err)
	}
	if err := a.WriteAt(dest, []byte("abc"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := a.Finalize(dest, 3); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 3 {
		t.Fatalf("expected truncated size 3, got %d", info.Size())
	}
}

func TestAssembler_SpillAndMerge_SequentialOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")

	a := New(filepath.Join(dir, "spill"))
	if err := a.Spill("seg-2", []byte("second ")); err != nil {
		t.Fatalf("Spill: %v", err)
	}
	if err := a.Spill("seg-1", []byte("first ")); err != nil {
		t.Fatalf("Spill: %v", err)
	}
	if err := a.Spill("seg-3", []byte("third")); err != nil {
		t.Fatalf("Spill: %v", err)
	}

	if err := a.MergeSpilled(dest, []string{"seg-1", "seg-2", "seg-3"}); err != nil {
		t.Fatalf("MergeSpilled: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "first second third" {
		t.Fatalf("expected merged-in-order content, got %q", got)
	}

	for _, id := range []string{"seg-1", "seg-2", "seg-3"} {
		if _, err := os.Stat(a.spillPath(id)); !os.IsNotExist(err) {
			t.Fatalf("expected spill file %s to be removed after merge", id)
		}
	}
}

func TestAssembler_MergeSpilled_MissingSpillFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")

	a := New(filepath.Join(dir, "spill"))
	if err := a.MergeSpilled(dest, []string{"never-spilled"}); err == nil {
		t.Fatal("expected an error merging a spill file that was never written")
	}
}

func TestAssembler_CloseAll_FinalizesWithoutTruncating(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")

	a := New(filepath.Join(dir, "spill"))
	if err := a.PreAllocate(dest, 100); err != nil {
		t.Fatalf("PreAllocate: %v", err)
	}
	a.CloseAll()

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 100 {
		t.Fatalf("expected size left at preallocated 100 (no truncation), got %d", info.Size())
	}
}
