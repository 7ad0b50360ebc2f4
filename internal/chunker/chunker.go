/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

// Package chunker implements FastCDC, a content-defined chunking algorithm
// that splits a byte stream into variable-size chunks whose boundaries
// depend on local content rather than absolute offsets, so insertions and
// deletions only shift chunk boundaries nearby instead of reshuffling every
// downstream chunk.
package chunker

import (
	"bufio"
	"io"

	"github.com/google/readahead"
)

const (
	// DefaultAverageSize is the target mean chunk size (S) used when none
	// is specified.
	DefaultAverageSize = 1 << 20 // 1 MiB

	maskSmallBits = 13
	maskLargeBits = 11
	windowSize    = 64
)

// Chunk is a contiguous byte range produced by the chunker.
type Chunk struct {
	Data []byte
	Size int
}

// Chunker splits an io.Reader into content-defined chunks.
type Chunker struct {
	r           io.Reader
	avg         int
	min         int
	max         int
	maskS       uint64
	maskL       uint64
	buf         []byte
	bufLen      int
	eof         bool
	closeReader func() error
}

// New creates a Chunker over r with the given average chunk size S. If
// avgSize is <= 0, DefaultAverageSize is used.
func New(r io.Reader, avgSize int) *Chunker {
	if avgSize <= 0 {
		avgSize = DefaultAverageSize
	}

	rr := readahead.NewReader(bufio.NewReaderSize(r, avgSize))

	max := avgSize * 8
	return &Chunker{
		r:           rr,
		avg:         avgSize,
		min:         avgSize / 2,
		max:         max,
		maskS:       (1 << maskSmallBits) - 1,
		maskL:       (1 << maskLargeBits) - 1,
		buf:         make([]byte, max),
		closeReader: rr.Close,
	}
}

// Close releases the internal read-ahead goroutine. Safe to call multiple
// times.
func (c *Chunker) Close() error {
	if c.closeReader == nil {
		return nil
	}
	err := c.closeReader()
	c.closeReader = nil
	return err
}

// Next returns the next chunk of the stream, or io.EOF once the stream is
// exhausted. The returned Chunk's Data is only valid until the next call to
// Next.
func (c *Chunker) Next() (Chunk, error) {
	for !c.eof && c.bufLen < c.max {
		if err := c.fill(); err != nil {
			return Chunk{}, err
		}
	}

	if c.bufLen == 0 {
		return Chunk{}, io.EOF
	}

	boundary := findBoundary(c.buf[:c.bufLen], c.min, c.max, c.avg, c.maskS, c.maskL)

	data := make([]byte, boundary)
	copy(data, c.buf[:boundary])

	copy(c.buf, c.buf[boundary:c.bufLen])
	c.bufLen -= boundary

	return Chunk{Data: data, Size: boundary}, nil
}

// ForEach invokes fn once per chunk, in stream order, until the stream is
// exhausted or fn returns an error.
func (c *Chunker) ForEach(fn func(Chunk) error) error {
	defer c.Close()
	for {
		chunk, err := c.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
}

func (c *Chunker) fill() error {
	n, err := c.r.Read(c.buf[c.bufLen:])
	c.bufLen += n
	if err == io.EOF {
		c.eof = true
		return nil
	}
	return err
}

// findBoundary implements the FastCDC boundary search: given a buffer and
// min/max/avg sizes (derived from the average chunk size S), return the
// length of the next chunk. The caller guarantees buf holds either at
// least max bytes, or everything remaining in the stream.
func findBoundary(buf []byte, min, max, avg int, maskS, maskL uint64) int {
	l := len(buf)

	if min >= l {
		// Not enough data left to even reach MIN: the rest of the stream
		// (or, mid-stream, everything buffered so far) forms one chunk.
		return l
	}

	searchEnd := max
	if searchEnd > l {
		searchEnd = l
	}

	normal := avg
	if normal > searchEnd {
		normal = searchEnd
	}

	var h uint64
	windowStart := min - windowSize
	if windowStart < 0 {
		windowStart = 0
	}
	for i := windowStart; i < min; i++ {
		h = (h << 1) + gearTable[buf[i]]
	}

	p := min

	// Small region: stricter mask, larger chunks.
	for p < normal {
		if p >= windowSize {
			h -= gearTable[buf[p-windowSize]] << (windowSize - 1)
		}
		h = (h << 1) + gearTable[buf[p]]
		p++
		if (h & maskS) == 0 {
			return p
		}
	}

	// Large region: looser mask, easier to find a boundary.
	for p < searchEnd {
		if p >= windowSize {
			h -= gearTable[buf[p-windowSize]] << (windowSize - 1)
		}
		h = (h << 1) + gearTable[buf[p]]
		p++
		if (h & maskL) == 0 {
			return p
		}
	}

	return searchEnd
}
