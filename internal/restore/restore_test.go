/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

package restore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/knoxite-labs/backupcore/internal/engine"
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

func TestRestoreScenarioA(t *testing.T) {
	backend := newTestRepo(t)
	src := t.TempDir()

	t0 := time.Unix(1700000000, 0)
	t1 := time.Unix(1700000100, 0)

	writeFile(t, filepath.Join(src, "a.txt"), []byte("hello\n"), t0)
	writeFile(t, filepath.Join(src, "sub", "b.bin"), bytes.Repeat([]byte{0}, 4096), t1)
	if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	eng := engine.New(backend, "", engine.Options{})
	snapName, _, err := eng.Backup(context.Background(), src, metadata.Full, "", nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	tempDir := t.TempDir()
	r := New(backend, "", tempDir)
	snap, err := r.Load(context.Background(), snapName, tempDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	out := t.TempDir()
	failures := r.RestoreAll(context.Background(), snap, out)
	if len(failures) != 0 {
		t.Fatalf("unexpected restore failures: %+v", failures)
	}

	restoredPath := func(original string) string {
		parent := strings.TrimPrefix(filepath.Dir(original), "/")
		return filepath.Join(out, parent, filepath.Base(original))
	}

	gotA, err := os.ReadFile(restoredPath(filepath.Join(src, "a.txt")))
	if err != nil {
		t.Fatalf("reading restored a.txt: %v", err)
	}
	if string(gotA) != "hello\n" {
		t.Errorf("restored a.txt content mismatch: %q", gotA)
	}

	linkPath := restoredPath(filepath.Join(src, "link"))
	target, err := os.Readlink(linkPath)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "a.txt" {
		t.Errorf("expected symlink target a.txt, got %q", target)
	}

	for path := range snap.Files {
		status := r.VerifyFile(context.Background(), snap, path, t.TempDir())
		if status != Success {
			t.Errorf("VerifyFile(%s) = %s, want Success", path, status)
		}
	}
}

func TestVerifyChunkMissingIsFailed(t *testing.T) {
	backend := newTestRepo(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), bytes.Repeat([]byte("x"), 1<<20), time.Now())

	eng := engine.New(backend, "", engine.Options{})
	snapName, _, err := eng.Backup(context.Background(), src, metadata.Full, "", nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	tempDir := t.TempDir()
	r := New(backend, "", tempDir)
	snap, err := r.Load(context.Background(), snapName, tempDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var key string
	var entry metadata.FileEntry
	for k, v := range snap.Files {
		key, entry = k, v
		break
	}

	localBackend := backend.(*local.Backend)
	hash := entry.Chunks[0].ShardHashes[0]
	chunkFile := filepath.Join(localBackend.Root, "chunks", hash[:2], hash+".chunk")
	if err := os.Remove(chunkFile); err != nil {
		t.Fatalf("removing chunk: %v", err)
	}

	status := r.VerifyFile(context.Background(), snap, key, t.TempDir())
	if status != Failed {
		t.Errorf("VerifyFile with missing chunk = %s, want Failed", status)
	}

	failures := r.RestoreAll(context.Background(), snap, t.TempDir())
	if len(failures) != 1 {
		t.Fatalf("expected exactly 1 restore failure, got %d: %+v", len(failures), failures)
	}
}

func TestVerifyCorruptChunkIsCorrupt(t *testing.T) {
	backend := newTestRepo(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), bytes.Repeat([]byte("x"), 1<<20), time.Now())

	eng := engine.New(backend, "", engine.Options{})
	snapName, _, err := eng.Backup(context.Background(), src, metadata.Full, "", nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	tempDir := t.TempDir()
	r := New(backend, "", tempDir)
	snap, err := r.Load(context.Background(), snapName, tempDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var key string
	var entry metadata.FileEntry
	for k, v := range snap.Files {
		key, entry = k, v
		break
	}

	localBackend := backend.(*local.Backend)
	hash := entry.Chunks[0].ShardHashes[0]
	chunkFile := filepath.Join(localBackend.Root, "chunks", hash[:2], hash+".chunk")

	raw, err := os.ReadFile(chunkFile)
	if err != nil {
		t.Fatalf("reading chunk: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	raw[len(raw)-2] ^= 0xFF
	if err := os.WriteFile(chunkFile, raw, 0644); err != nil {
		t.Fatalf("corrupting chunk: %v", err)
	}

	status := r.VerifyFile(context.Background(), snap, key, t.TempDir())
	if status != Corrupt {
		t.Errorf("VerifyFile with corrupted chunk = %s, want Corrupt", status)
	}
}

func TestBackupRestoreWithParitySurvivesShardLoss(t *testing.T) {
	backend := newTestRepo(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), bytes.Repeat([]byte("y"), 1<<20), time.Now())

	eng := engine.New(backend, "", engine.Options{DataParts: 4, ParityParts: 2})
	snapName, _, err := eng.Backup(context.Background(), src, metadata.Full, "", nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	tempDir := t.TempDir()
	r := New(backend, "", tempDir)
	snap, err := r.Load(context.Background(), snapName, tempDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var key string
	var entry metadata.FileEntry
	for k, v := range snap.Files {
		key, entry = k, v
		break
	}

	ref := entry.Chunks[0]
	if ref.ParityParts != 2 || len(ref.ShardHashes) != ref.DataParts+ref.ParityParts {
		t.Fatalf("unexpected chunk ref: %+v", ref)
	}

	localBackend := backend.(*local.Backend)
	lostHash := ref.ShardHashes[0]
	lostPath := filepath.Join(localBackend.Root, "chunks", lostHash[:2], lostHash+".chunk")
	if err := os.Remove(lostPath); err != nil {
		t.Fatalf("removing shard: %v", err)
	}

	status := r.VerifyFile(context.Background(), snap, key, t.TempDir())
	if status != Success {
		t.Errorf("VerifyFile after losing %d of %d parity shards = %s, want Success", 1, ref.ParityParts, status)
	}

	out := t.TempDir()
	failures := r.RestoreAll(context.Background(), snap, out)
	if len(failures) != 0 {
		t.Fatalf("unexpected restore failures after shard loss: %+v", failures)
	}
}

func TestCompareBackups(t *testing.T) {
	a := metadata.Snapshot{Files: map[string]metadata.FileEntry{
		"/x": {TotalSize: 1, Mtime: 100},
		"/y": {TotalSize: 2, Mtime: 200},
		"/z": {TotalSize: 3, Mtime: 300},
	}}
	b := metadata.Snapshot{Files: map[string]metadata.FileEntry{
		"/x": {TotalSize: 1, Mtime: 100}, // unchanged
		"/y": {TotalSize: 99, Mtime: 200}, // changed
		"/w": {TotalSize: 4, Mtime: 400}, // added
		// /z deleted
	}}

	result := CompareBackups(a, b)
	if result.Unchanged != 1 || result.Changed != 1 || result.Added != 1 || result.Deleted != 1 {
		t.Errorf("unexpected compare result: %+v", result)
	}
}
