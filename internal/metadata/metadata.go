/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

// Package metadata defines the snapshot metadata document and its optional
// encryption envelope. A Snapshot is self-describing: its Files map alone
// is sufficient to restore the tree.
package metadata

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Type identifies the kind of backup a Snapshot represents.
type Type int

const (
	Full Type = iota
	Incremental
	Differential
)

// ChunkRef locates one chunk of a file's content in the chunk store: either
// a single content-addressed object (ParityParts == 0, the common case) or
// a reed-solomon protected shard set spread across DataParts+ParityParts
// individually addressed shards. EncodedSize is the exact byte length of
// the original encoded chunk, needed to strip reed-solomon's shard padding
// before decoding.
type ChunkRef struct {
	DataParts   int      `json:"data_parts"`
	ParityParts int      `json:"parity_parts"`
	ShardHashes []string `json:"shard_hashes"`
	EncodedSize int      `json:"encoded_size"`
}

// FileEntry records everything needed to restore or compare one path.
type FileEntry struct {
	OriginalFilename string     `json:"original_filename"`
	Chunks           []ChunkRef `json:"chunks"`
	TotalSize        uint64     `json:"total_size"`
	Mtime            int64      `json:"mtime"`
	IsSymlink        bool       `json:"is_symlink"`
	SymlinkTarget    string     `json:"symlink_target,omitempty"`
	Permissions      string     `json:"permissions"`
	SHA256Checksum   string     `json:"sha256_checksum"`
}

// Snapshot is the full metadata document for one backup run.
type Snapshot struct {
	Type           Type                 `json:"type"`
	Timestamp      int64                `json:"timestamp"`
	PreviousBackup string               `json:"previous_backup"`
	Remarks        string               `json:"remarks"`
	Files          map[string]FileEntry `json:"files"`
}

// MetadataCorrupt wraps any failure decoding a metadata document: a bad
// password against encrypted bytes, or bytes that are neither the
// encryption envelope nor valid JSON.
type MetadataCorrupt struct {
	Reason string
}

func (e *MetadataCorrupt) Error() string { return "metadata corrupt: " + e.Reason }

const (
	magic           = "BACKUPENC"
	saltSize        = 32
	ivSize          = 16
	pbkdf2Iters     = 10000
	pbkdf2KeyLength = 32
)

// Marshal serialises snap to plain JSON.
func Marshal(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// Unmarshal parses a plain JSON metadata document.
func Unmarshal(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, &MetadataCorrupt{Reason: "unencrypted and not JSON: " + err.Error()}
	}
	return snap, nil
}

// Encode serialises snap to JSON and, if password is non-empty, wraps it in
// the BACKUPENC envelope. An empty password writes plain JSON.
func Encode(snap Snapshot, password string) ([]byte, error) {
	plaintext, err := Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal: %w", err)
	}
	if password == "" {
		return plaintext, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("metadata: generating salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("metadata: generating iv: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iters, pbkdf2KeyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("metadata: building cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	buf := make([]byte, 0, len(magic)+saltSize+ivSize+len(ciphertext))
	buf = append(buf, magic...)
	buf = append(buf, salt...)
	buf = append(buf, iv...)
	buf = append(buf, ciphertext...)
	return buf, nil
}

// Decode detects the BACKUPENC envelope and decrypts with password if
// present, falling back to treating data as plain JSON otherwise.
func Decode(data []byte, password string) (Snapshot, error) {
	if len(data) >= len(magic) && bytes.Equal(data[:len(magic)], []byte(magic)) {
		return decodeEncrypted(data, password)
	}
	return Unmarshal(data)
}

func decodeEncrypted(data []byte, password string) (Snapshot, error) {
	rest := data[len(magic):]
	if len(rest) < saltSize+ivSize {
		return Snapshot{}, &MetadataCorrupt{Reason: "envelope shorter than salt+iv"}
	}

	salt := rest[:saltSize]
	iv := rest[saltSize : saltSize+ivSize]
	ciphertext := rest[saltSize+ivSize:]

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return Snapshot{}, &MetadataCorrupt{Reason: "ciphertext not a multiple of the block size"}
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iters, pbkdf2KeyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return Snapshot{}, &MetadataCorrupt{Reason: "bad magic but wrong key: " + err.Error()}
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return Snapshot{}, &MetadataCorrupt{Reason: "bad magic but wrong key: " + err.Error()}
	}

	var snap Snapshot
	if err := json.Unmarshal(unpadded, &snap); err != nil {
		return Snapshot{}, &MetadataCorrupt{Reason: "bad magic but wrong key: " + err.Error()}
	}
	return snap, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, io.ErrUnexpectedEOF
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("metadata: invalid PKCS#7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("metadata: invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}
