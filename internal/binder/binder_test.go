package binder_test

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/binder"
)

func newFSBinder(t *testing.T) *binder.Binder {
	t.Helper()
	store, err := binder.NewFSStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatal(err)
	}
	return binder.New("http://localhost:3000/", binder.PassthroughStamper{}, store, zap.NewNop())
}

func TestReference_embedsHash(t *testing.T) {
	b := newFSBinder(t)
	got := b.Reference("abc123")
	want := "http://localhost:3000/verify?h=abc123"
	if got != want {
		t.Errorf("Reference: got %q, want %q", got, want)
	}
}

func TestBind_roundTrip(t *testing.T) {
	b := newFSBinder(t)

	name, err := b.Bind(7, "F-1.pdf", []byte("document body"), b.Reference("h"))
	if err != nil {
		t.Fatal(err)
	}
	if name != "7_F-1.pdf" {
		t.Errorf("stored name: got %q, want %q", name, "7_F-1.pdf")
	}

	data, err := b.Artifact(name)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "document body" {
		t.Errorf("artifact content changed: %q", data)
	}
}

type failingStamper struct{}

func (failingStamper) Stamp([]byte, string) ([]byte, error) {
	return nil, errors.New("overlay renderer unavailable")
}

func TestBind_stampFailure(t *testing.T) {
	store, err := binder.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b := binder.New("http://localhost:3000", failingStamper{}, store, zap.NewNop())

	if _, err := b.Bind(1, "F-1.pdf", []byte("doc"), "ref"); !errors.Is(err, binder.ErrStamp) {
		t.Errorf("expected ErrStamp, got %v", err)
	}
}

func TestFSStore_rejectsTraversal(t *testing.T) {
	store, err := binder.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save("..", []byte("x")); err == nil {
		t.Error("expected error for traversal name")
	}
}
