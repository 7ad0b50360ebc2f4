/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

package metadata

import (
	"errors"
	"testing"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Type:           Full,
		Timestamp:      1700000000,
		PreviousBackup: "",
		Remarks:        "nightly",
		Files: map[string]FileEntry{
			"/src/a.txt": {
				OriginalFilename: "a.txt",
				Chunks:           []ChunkRef{{DataParts: 1, ParityParts: 0, ShardHashes: []string{"deadbeef"}, EncodedSize: 6}},
				TotalSize:        6,
				Mtime:            1700000000,
				Permissions:      "0644",
				SHA256Checksum:   "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03",
			},
			"/src/link": {
				OriginalFilename: "link",
				IsSymlink:        true,
				SymlinkTarget:    "a.txt",
				Permissions:      "0777",
				Mtime:            1700000000,
			},
		},
	}
}

func TestPlainRoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	data, err := Encode(snap, "")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Remarks != snap.Remarks || len(got.Files) != len(snap.Files) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	data, err := Encode(snap, "correct horse")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		t.Fatalf("expected encrypted document to start with the envelope magic")
	}

	got, err := Decode(data, "correct horse")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Files["/src/link"].SymlinkTarget != "a.txt" {
		t.Errorf("decrypted snapshot missing symlink entry: %+v", got)
	}
}

// Mirrors the teacher's own wrong-password test for its AES config backend:
// decrypting an encrypted document with the wrong password must fail, not
// silently return garbage.
func TestEncryptedWrongPassword(t *testing.T) {
	snap := sampleSnapshot()

	data, err := Encode(snap, "correct horse")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = Decode(data, "wrong horse")
	var corrupt *MetadataCorrupt
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected MetadataCorrupt decrypting with the wrong password, got %v", err)
	}
}

func TestMagicDiscrimination(t *testing.T) {
	if _, err := Decode([]byte(`{"type":0,"timestamp":1,"previous_backup":"","remarks":"","files":{}}`), ""); err != nil {
		t.Errorf("plain JSON without the magic prefix should decode as unencrypted: %v", err)
	}

	_, err := Decode([]byte("not json and not the envelope"), "")
	var corrupt *MetadataCorrupt
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected MetadataCorrupt for garbage input, got %v", err)
	}
}

func TestEmptyPasswordWritesPlainJSON(t *testing.T) {
	data, err := Encode(sampleSnapshot(), "")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) >= len(magic) && string(data[:len(magic)]) == magic {
		t.Errorf("empty password must not produce an encrypted envelope")
	}
}
