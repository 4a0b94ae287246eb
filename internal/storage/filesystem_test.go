package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"product-admin/internal/config"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newTestStore(t *testing.T) *FileSystem {
	t.Helper()

	store, err := NewFileSystem(config.StorageConfig{
		Root:          t.TempDir(),
		PublicBaseURL: "http://localhost:8080/storage/",
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestSave_WritesBlobUnderFolder(t *testing.T) {
	store := newTestStore(t)
	data := []byte("\x89PNG\r\n\x1a\nfake")

	stored, err := store.Save(context.Background(), data, "product_images", ".png")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if !strings.HasPrefix(stored, "product_images/") || !strings.HasSuffix(stored, ".png") {
		t.Errorf("Unexpected stored path %q", stored)
	}

	content, err := os.ReadFile(filepath.Join(store.Root(), filepath.FromSlash(stored)))
	if err != nil {
		t.Fatalf("Stored blob not readable: %v", err)
	}
	if !bytes.Equal(content, data) {
		t.Error("Stored blob content differs from input")
	}
}

func TestSave_AddsMissingExtensionDot(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Save(context.Background(), []byte("x"), "product_images", "jpg")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasSuffix(stored, ".jpg") {
		t.Errorf("Expected .jpg suffix, got %q", stored)
	}
}

func TestSave_RejectsFolderOutsideRoot(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(context.Background(), []byte("x"), "../escape", ".png")
	if !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath, got %v", err)
	}
}

func TestSave_HonoursCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Save(ctx, []byte("x"), "product_images", ".png"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDelete_IsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, err := store.Save(ctx, []byte("x"), "product_images", ".gif")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete(ctx, stored); err != nil {
		t.Fatalf("First delete failed: %v", err)
	}
	if err := store.Delete(ctx, stored); err != nil {
		t.Errorf("Second delete should be a no-op, got %v", err)
	}
	if err := store.Delete(ctx, "product_images/never-existed.png"); err != nil {
		t.Errorf("Deleting an unknown path should succeed, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(store.Root(), filepath.FromSlash(stored))); !os.IsNotExist(err) {
		t.Error("Blob still present after delete")
	}
}

func TestDelete_RejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	if err := store.Delete(context.Background(), "../../etc/passwd"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath, got %v", err)
	}
	if err := store.Delete(context.Background(), ""); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath for root, got %v", err)
	}
}

func TestList_ReturnsStoredBlobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	blobs, err := store.List(ctx, "product_images")
	if err != nil {
		t.Fatalf("List on missing folder failed: %v", err)
	}
	if len(blobs) != 0 {
		t.Errorf("Expected no blobs, got %d", len(blobs))
	}

	first, _ := store.Save(ctx, []byte("a"), "product_images", ".png")
	second, _ := store.Save(ctx, []byte("b"), "product_images", ".png")

	blobs, err = store.List(ctx, "product_images")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	found := map[string]bool{}
	for _, b := range blobs {
		found[b.Path] = true
		if b.ModTime.IsZero() {
			t.Errorf("Blob %s has zero mod time", b.Path)
		}
	}
	if !found[first] || !found[second] || len(blobs) != 2 {
		t.Errorf("Expected %s and %s, got %v", first, second, blobs)
	}
}

func TestURL(t *testing.T) {
	store := newTestStore(t)

	got := store.URL("product_images/a.png")
	if got != "http://localhost:8080/storage/product_images/a.png" {
		t.Errorf("Unexpected URL %q", got)
	}
}

func TestProperty_SavedPathsNeverCollide(t *testing.T) {
	store := newTestStore(t)
	seen := make(map[string]bool)

	properties := gopter.NewProperties(nil)

	properties.Property("every save returns a fresh path", prop.ForAll(
		func(content []byte) bool {
			stored, err := store.Save(context.Background(), content, "product_images", ".png")
			if err != nil {
				t.Logf("FAIL: Save failed: %v", err)
				return false
			}
			if seen[stored] {
				t.Logf("FAIL: Duplicate path %s", stored)
				return false
			}
			seen[stored] = true
			return true
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
