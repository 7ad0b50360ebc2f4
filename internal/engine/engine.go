/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

// Package engine implements the Snapshot Engine: it walks a source tree,
// runs the FULL/INCREMENTAL/DIFFERENTIAL change detector, drives the
// chunker, codec, and chunk store for changed files, and emits a snapshot
// metadata document.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	apppaths "github.com/muesli/go-app-paths"
	"github.com/muesli/crunchy"
	shutdown "github.com/klauspost/shutdown2"

	"github.com/knoxite-labs/backupcore/internal/chunker"
	"github.com/knoxite-labs/backupcore/internal/codec"
	"github.com/knoxite-labs/backupcore/internal/metadata"
	"github.com/knoxite-labs/backupcore/internal/progress"
	"github.com/knoxite-labs/backupcore/internal/repository"
	"github.com/knoxite-labs/backupcore/internal/store"
)

// ErrNoBaseline is returned when an INCREMENTAL or DIFFERENTIAL snapshot is
// requested but no suitable baseline snapshot exists in the repository.
var ErrNoBaseline = errors.New("engine: no baseline snapshot available")

// ErrSnapshotCollision is returned when a new snapshot's name
// (YYYYMMDD_HHMMSS, second resolution) already exists in the repository.
var ErrSnapshotCollision = errors.New("engine: a snapshot with this name already exists")

// ErrWeakPassword is returned by Initialize when crunchy rejects a
// non-empty repository password as too weak.
var ErrWeakPassword = errors.New("engine: password fails strength check")

// Summary reports the per-kind file counts at the end of a backup run.
type Summary struct {
	Added     int
	Changed   int
	Unchanged int
	Deleted   int
}

// Engine drives one backup operation against a repository.
type Engine struct {
	backend     repository.Backend
	password    string
	avgChunk    int
	dataParts   int
	parityParts int

	tempDir string
	store   *store.Store

	appPaths *apppaths.Scope
}

// Options configures an Engine.
type Options struct {
	AvgChunkSize int // default chunker.DefaultAverageSize
	ParityParts  int // reed-solomon parity shards; 0 disables sharding
	DataParts    int // reed-solomon data shards; ignored if ParityParts == 0
}

// New constructs an Engine bound to backend, authenticated with password
// (empty disables metadata encryption).
func New(backend repository.Backend, password string, opts Options) *Engine {
	avg := opts.AvgChunkSize
	if avg <= 0 {
		avg = chunker.DefaultAverageSize
	}
	dataParts := opts.DataParts
	if dataParts <= 0 {
		dataParts = 1
	}
	return &Engine{
		backend:     backend,
		password:    password,
		avgChunk:    avg,
		dataParts:   dataParts,
		parityParts: opts.ParityParts,
		appPaths:    apppaths.NewScope(apppaths.User, "backupcore"),
	}
}

// Initialize creates a new, empty repository. If password is non-empty, it
// is checked for strength with crunchy before the repository is created.
func Initialize(ctx context.Context, backend repository.Backend, name, path, password string) error {
	if password != "" {
		validator := crunchy.NewValidator()
		if err := validator.Check(password); err != nil {
			return fmt.Errorf("%w: %v", ErrWeakPassword, err)
		}
	}
	cfg := repository.NewConfig(name, repository.TypeLocal, path, password)
	return backend.Initialize(ctx, cfg)
}

// openTemp creates the engine's scoped temp directory tree and registers a
// shutdown hook so it is cleaned up on SIGINT/SIGTERM as well as on normal
// return.
func (e *Engine) openTemp() error {
	base, err := e.appPaths.CacheDir()
	if err != nil {
		base = os.TempDir()
	}
	dir, err := os.MkdirTemp(base, "backupcore-snapshot-")
	if err != nil {
		return fmt.Errorf("engine: creating temp dir: %w", err)
	}
	for _, sub := range []string{"backup", "chunks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			os.RemoveAll(dir)
			return fmt.Errorf("engine: creating %s: %w", sub, err)
		}
	}

	e.tempDir = dir
	e.store = store.New(e.backend, filepath.Join(dir, "chunks"))

	// Run the temp-dir cleanup on SIGINT/SIGTERM too, not only on normal
	// return from Backup: the teacher's own shutdown2 notifier pattern is a
	// channel of "ack" channels, read once and closed after cleanup runs.
	go func() {
		for ack := range shutdown.First() {
			os.RemoveAll(dir)
			close(ack)
			return
		}
	}()
	return nil
}

func (e *Engine) closeTemp() {
	if e.tempDir != "" {
		os.RemoveAll(e.tempDir)
		e.tempDir = ""
	}
}

// ListSnapshots enumerates backup/ on the repository and returns filenames
// sorted lexicographically descending, so the most recent snapshot sorts
// first.
func ListSnapshots(ctx context.Context, backend repository.Backend) ([]string, error) {
	names, err := backend.List(ctx, "backup")
	if err != nil {
		return nil, fmt.Errorf("engine: listing snapshots: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// GetLatestFull returns the name and metadata of the most recent FULL
// snapshot, skipping any snapshot whose metadata fails to decode.
func GetLatestFull(ctx context.Context, backend repository.Backend, password, tempDir string) (string, metadata.Snapshot, error) {
	names, err := ListSnapshots(ctx, backend)
	if err != nil {
		return "", metadata.Snapshot{}, err
	}
	for _, name := range names {
		snap, err := loadSnapshot(ctx, backend, name, password, tempDir)
		if err != nil {
			continue
		}
		if snap.Type == metadata.Full {
			return name, snap, nil
		}
	}
	return "", metadata.Snapshot{}, ErrNoBaseline
}

func loadSnapshot(ctx context.Context, backend repository.Backend, name, password, tempDir string) (metadata.Snapshot, error) {
	local := filepath.Join(tempDir, "backup", name)
	if err := backend.DownloadFile(ctx, filepath.Join("backup", name), local); err != nil {
		return metadata.Snapshot{}, err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return metadata.Snapshot{}, err
	}
	return metadata.Decode(data, password)
}

func selectBaseline(ctx context.Context, backend repository.Backend, typ metadata.Type, password, tempDir string) (string, metadata.Snapshot, error) {
	names, err := ListSnapshots(ctx, backend)
	if err != nil {
		return "", metadata.Snapshot{}, err
	}

	switch typ {
	case metadata.Incremental:
		for _, name := range names {
			snap, err := loadSnapshot(ctx, backend, name, password, tempDir)
			if err != nil {
				continue
			}
			return name, snap, nil
		}
		return "", metadata.Snapshot{}, ErrNoBaseline

	case metadata.Differential:
		for _, name := range names {
			snap, err := loadSnapshot(ctx, backend, name, password, tempDir)
			if err != nil {
				continue
			}
			if snap.Type == metadata.Full {
				return name, snap, nil
			}
		}
		return "", metadata.Snapshot{}, ErrNoBaseline
	}
	return "", metadata.Snapshot{}, nil
}

// Backup performs one complete snapshot operation: it downloads the
// repository's backup/ directory for baseline visibility, selects a
// baseline if typ != Full, walks source, and uploads chunks then metadata.
func (e *Engine) Backup(ctx context.Context, source string, typ metadata.Type, remarks string, sink progress.Sink) (string, Summary, error) {
	if err := e.openTemp(); err != nil {
		return "", Summary{}, err
	}
	defer e.closeTemp()
	defer progress.Close(sink)

	if err := e.backend.DownloadDirectory(ctx, "backup", filepath.Join(e.tempDir, "backup")); err != nil {
		return "", Summary{}, fmt.Errorf("engine: downloading baseline backup directory: %w", err)
	}

	snap := metadata.Snapshot{
		Type:      typ,
		Timestamp: time.Now().Unix(),
		Remarks:   remarks,
		Files:     make(map[string]metadata.FileEntry),
	}

	if typ != metadata.Full {
		baselineName, baseline, err := selectBaseline(ctx, e.backend, typ, e.password, e.tempDir)
		if err != nil {
			return "", Summary{}, err
		}
		snap.PreviousBackup = baselineName
		for k, v := range baseline.Files {
			snap.Files[k] = v
		}
	}

	name := time.Unix(snap.Timestamp, 0).Format("20060102_150405")
	if exists, err := e.backend.PathExists(ctx, filepath.Join("backup", name)); err == nil && exists {
		return "", Summary{}, ErrSnapshotCollision
	}

	stats := progress.Stats{}
	summary := Summary{}

	seen := make(map[string]bool)
	err := filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			progress.EmitError(sink, path, stats, err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if info.Mode()&os.ModeSymlink == 0 && !info.Mode().IsRegular() {
			return nil // neither a regular file nor a symlink: skip
		}

		key := path
		seen[key] = true

		prev, existed := snap.Files[key]
		changed := !existed
		if existed {
			changed, err = hasChanged(path, info, prev)
			if err != nil {
				progress.EmitError(sink, path, stats, err)
				return nil
			}
		}

		if !changed {
			stats.FilesUnchanged++
			summary.Unchanged++
			progress.Emit(sink, progress.Event{Path: path, Stats: stats})
			return nil
		}

		entry, err := e.backupFile(ctx, path, info)
		if err != nil {
			progress.EmitError(sink, path, stats, err)
			return nil
		}
		snap.Files[key] = entry

		stats.Size += entry.TotalSize
		if existed {
			stats.FilesChanged++
			summary.Changed++
		} else {
			stats.FilesAdded++
			summary.Added++
		}
		progress.Emit(sink, progress.Event{Path: path, Size: entry.TotalSize, Stats: stats})
		return nil
	})
	if err != nil {
		return "", Summary{}, fmt.Errorf("engine: walking %s: %w", source, err)
	}

	for key := range snap.Files {
		if !seen[key] {
			delete(snap.Files, key)
			stats.FilesDeleted++
			summary.Deleted++
		}
	}

	if err := e.saveMetadata(ctx, name, snap); err != nil {
		return "", Summary{}, err
	}

	return name, summary, nil
}

func hasChanged(path string, info os.FileInfo, prev metadata.FileEntry) (bool, error) {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return false, err
		}
		return target != prev.SymlinkTarget || info.ModTime().Unix() != prev.Mtime, nil
	}
	return uint64(info.Size()) != prev.TotalSize || info.ModTime().Unix() != prev.Mtime, nil
}

func (e *Engine) backupFile(ctx context.Context, path string, info os.FileInfo) (metadata.FileEntry, error) {
	entry := metadata.FileEntry{
		OriginalFilename: filepath.Base(path),
		Mtime:            info.ModTime().Unix(),
		Permissions:      permString(info.Mode()),
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return metadata.FileEntry{}, err
		}
		entry.IsSymlink = true
		entry.SymlinkTarget = target
		return entry, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return metadata.FileEntry{}, err
	}
	defer f.Close()

	sum := sha256.New()
	buf := make([]byte, 4096)
	if _, err := io.CopyBuffer(sum, f, buf); err != nil {
		return metadata.FileEntry{}, err
	}
	entry.SHA256Checksum = hex.EncodeToString(sum.Sum(nil))
	entry.TotalSize = uint64(info.Size())

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return metadata.FileEntry{}, err
	}

	c := chunker.New(f, e.avgChunk)
	defer c.Close()

	err = c.ForEach(func(ch chunker.Chunk) error {
		enc, err := codec.Encode(ch.Data)
		if err != nil {
			return err
		}
		set, err := e.store.PutWithParity(ctx, enc, e.dataParts, e.parityParts)
		if err != nil {
			return err
		}
		entry.Chunks = append(entry.Chunks, metadata.ChunkRef{
			DataParts:   set.DataParts,
			ParityParts: set.ParityParts,
			ShardHashes: set.ShardHashes,
			EncodedSize: set.EncodedSize,
		})
		return nil
	})
	if err != nil {
		return metadata.FileEntry{}, err
	}

	return entry, nil
}

func (e *Engine) saveMetadata(ctx context.Context, name string, snap metadata.Snapshot) error {
	data, err := metadata.Encode(snap, e.password)
	if err != nil {
		return fmt.Errorf("engine: encoding metadata: %w", err)
	}

	local := filepath.Join(e.tempDir, "backup", name)
	if err := os.WriteFile(local, data, 0644); err != nil {
		return fmt.Errorf("engine: staging metadata: %w", err)
	}

	if err := e.backend.UploadFile(ctx, local, "backup"); err != nil {
		return fmt.Errorf("engine: uploading metadata: %w", err)
	}
	return nil
}

func permString(mode os.FileMode) string {
	return fmt.Sprintf("%04o", mode.Perm())
}
