package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 3
	HeaderSize    int    = 96
	FooterSize    int    = 32
	FileExt              = ".spdx"
)

// SegmentHeader is the fixed-size header written at the start of every
// segment. The body that follows is postings, then dictionary, then stored
// fields; a footer closes the file.
type SegmentHeader struct {
	Magic        uint32
	Version      uint32
	TermCount    uint32
	DocCount     uint32
	Generation   uint64
	CreatedAt    int64
	PostOffset   int64
	PostSize     int64
	DictOffset   int64
	DictSize     int64
	StoredOffset int64
	StoredSize   int64
}

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], h.Generation)
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[64:72], uint64(h.StoredOffset))
	binary.LittleEndian.PutUint64(b[72:80], uint64(h.StoredSize))
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		TermCount:    binary.LittleEndian.Uint32(b[8:12]),
		DocCount:     binary.LittleEndian.Uint32(b[12:16]),
		Generation:   binary.LittleEndian.Uint64(b[16:24]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(b[24:32])),
		PostOffset:   int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:     int64(binary.LittleEndian.Uint64(b[40:48])),
		DictOffset:   int64(binary.LittleEndian.Uint64(b[48:56])),
		DictSize:     int64(binary.LittleEndian.Uint64(b[56:64])),
		StoredOffset: int64(binary.LittleEndian.Uint64(b[64:72])),
		StoredSize:   int64(binary.LittleEndian.Uint64(b[72:80])),
	}
}

// DictEntry maps a field term to its postings offset, length, and document
// frequency in the segment file.
type DictEntry struct {
	Field      string
	Term       string
	PostOffset int64
	PostLen    int
	DocFreq    int
}

// FileName returns the segment file name for a generation.
func FileName(generation uint64) string {
	return fmt.Sprintf("seg_%d%s", generation, FileExt)
}

// Writer serialises a built index into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates the segment file for generation. It writes to a
// .tmp file first, syncs it and renames on success; on failure the
// temporary file is removed and no segment becomes visible.
func (w *Writer) Write(generation uint64, entries []index.TermEntry, stored []map[string]string) (name string, err error) {
	name = FileName(generation)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	header := SegmentHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(entries)),
		DocCount:   uint32(len(stored)),
		Generation: generation,
		CreatedAt:  time.Now().Unix(),
		PostOffset: int64(HeaderSize),
	}
	if _, err := f.Write(header.encode()); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	checksum := crc32.NewIEEE()
	body := io.MultiWriter(f, checksum)

	var offset int64
	dict := make([]DictEntry, 0, len(entries))
	for _, entry := range entries {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := body.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Term:       entry.Term,
			PostOffset: offset,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(postingsData))
	}
	header.PostSize = offset

	dictData := encodeDict(dict)
	if _, err := body.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	header.DictOffset = header.PostOffset + header.PostSize
	header.DictSize = int64(len(dictData))

	storedData := encodeStored(stored)
	if _, err := body.Write(storedData); err != nil {
		return "", fmt.Errorf("writing stored fields: %w", err)
	}
	header.StoredOffset = header.DictOffset + header.DictSize
	header.StoredSize = int64(len(storedData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], header.DocCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.DictOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.DictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(header.StoredSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return name, nil
}
