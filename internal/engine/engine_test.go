/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/knoxite-labs/backupcore/internal/metadata"
	"github.com/knoxite-labs/backupcore/internal/repository"
	"github.com/knoxite-labs/backupcore/internal/repository/local"
)

func newTestRepo(t *testing.T) repository.Backend {
	t.Helper()
	root := t.TempDir()
	backend := local.New(root)
	if err := backend.Initialize(context.Background(), repository.NewConfig("test", repository.TypeLocal, root, "")); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return backend
}

func writeFile(t *testing.T, path string, content []byte, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func TestBackupFullSmallTree(t *testing.T) {
	backend := newTestRepo(t)
	src := t.TempDir()

	t0 := time.Unix(1700000000, 0)
	t1 := time.Unix(1700000100, 0)

	writeFile(t, filepath.Join(src, "a.txt"), []byte("hello\n"), t0)
	writeFile(t, filepath.Join(src, "sub", "b.bin"), bytes.Repeat([]byte{0}, 4096), t1)
	if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	e := New(backend, "", Options{})
	name, summary, err := e.Backup(context.Background(), src, metadata.Full, "nightly", nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if summary.Added != 3 {
		t.Errorf("expected 3 added, got %+v", summary)
	}

	if err := backend.DownloadFile(context.Background(), filepath.Join("backup", name), filepath.Join(t.TempDir(), "snap")); err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
}

func TestBackupDedup(t *testing.T) {
	backend := newTestRepo(t)
	src := t.TempDir()

	content := bytes.Repeat([]byte{0xAB}, 1<<20)
	now := time.Unix(1700000000, 0)
	writeFile(t, filepath.Join(src, "one.bin"), content, now)
	writeFile(t, filepath.Join(src, "two.bin"), content, now)

	e := New(backend, "", Options{})
	_, summary, err := e.Backup(context.Background(), src, metadata.Full, "", nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if summary.Added != 2 {
		t.Errorf("expected 2 added, got %+v", summary)
	}

	var chunkCount int
	for i := 0; i < 256; i++ {
		names, err := backend.List(context.Background(), filepath.Join("chunks", hexPrefix(i)))
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		chunkCount += len(names)
	}
	if chunkCount != 1 {
		t.Errorf("expected exactly 1 chunk file for identical content, got %d", chunkCount)
	}
}

func hexPrefix(i int) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[i>>4], hex[i&0xf]})
}

func TestBackupIncremental(t *testing.T) {
	backend := newTestRepo(t)
	src := t.TempDir()

	t0 := time.Unix(1700000000, 0)
	t1 := time.Unix(1700000100, 0)
	t2 := time.Unix(1700000200, 0)

	aPath := filepath.Join(src, "a.txt")
	bPath := filepath.Join(src, "sub", "b.bin")
	writeFile(t, aPath, []byte("hello\n"), t0)
	writeFile(t, bPath, bytes.Repeat([]byte{0}, 4096), t1)
	if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	e := New(backend, "", Options{})
	fullName, _, err := e.Backup(context.Background(), src, metadata.Full, "", nil)
	if err != nil {
		t.Fatalf("full Backup: %v", err)
	}

	// Snapshot names have one-second resolution and a second snapshot within
	// the same second fails with ErrSnapshotCollision, so move past it.
	time.Sleep(time.Second)

	// mutate: change a.txt, remove b.bin, add c.txt
	writeFile(t, aPath, []byte("hello!\n"), t2)
	if err := os.Remove(bPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	writeFile(t, filepath.Join(src, "c.txt"), []byte("new\n"), t2)

	incName, summary, err := e.Backup(context.Background(), src, metadata.Incremental, "", nil)
	if err != nil {
		t.Fatalf("incremental Backup: %v", err)
	}
	if summary.Changed != 1 || summary.Deleted != 1 || summary.Added != 1 || summary.Unchanged != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	tmp := t.TempDir()
	staged := filepath.Join(tmp, "incsnap")
	if err := backend.DownloadFile(context.Background(), filepath.Join("backup", incName), staged); err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	raw, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	snap, err := metadata.Decode(raw, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if snap.PreviousBackup != fullName {
		t.Errorf("expected previous_backup %q, got %q", fullName, snap.PreviousBackup)
	}
	if _, ok := snap.Files[bPath]; ok {
		t.Errorf("expected deleted file to be absent from files map")
	}
	if _, ok := snap.Files[filepath.Join(src, "c.txt")]; !ok {
		t.Errorf("expected new file to be present in files map")
	}
	linkEntry, ok := snap.Files[filepath.Join(src, "link")]
	if !ok || linkEntry.SymlinkTarget != "a.txt" {
		t.Errorf("expected unchanged symlink entry to be carried over verbatim")
	}
}

func TestNoBaselineFails(t *testing.T) {
	backend := newTestRepo(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), []byte("x"), time.Now())

	e := New(backend, "", Options{})
	_, _, err := e.Backup(context.Background(), src, metadata.Incremental, "", nil)
	if err != ErrNoBaseline {
		t.Errorf("expected ErrNoBaseline, got %v", err)
	}
}
