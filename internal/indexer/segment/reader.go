package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"maps"
	"os"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// Reader gives read-only access to one segment file. Everything except the
// postings is loaded and verified at open time; postings are read on demand.
// A Reader is safe for concurrent use.
type Reader struct {
	file     *os.File
	header   SegmentHeader
	dict     []DictEntry
	stored   []map[string]string
	postBase int64
}

// OpenReader opens and validates the segment at path. A missing file yields
// ErrIndexNotFound, a structurally invalid one ErrCorruptIndex.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.ErrIndexNotFound, err, "opening segment file")
		}
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "opening segment file")
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "stat segment file")
	}
	size := info.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, corruptf("%s: file too short (%d bytes)", path, size)
	}

	headerBytes := make([]byte, HeaderSize)
	if err := readAt(f, headerBytes, 0); err != nil {
		return nil, err
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, corruptf("%s: bad magic bytes %x", path, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, corruptf("%s: unsupported format version %d", path, header.Version)
	}
	bodyEnd := size - int64(FooterSize)
	if header.PostOffset != int64(HeaderSize) ||
		header.PostSize < 0 || header.DictSize < 0 || header.StoredSize < 0 ||
		header.DictOffset != header.PostOffset+header.PostSize ||
		header.StoredOffset != header.DictOffset+header.DictSize ||
		header.StoredOffset+header.StoredSize != bodyEnd {
		return nil, corruptf("%s: section offsets do not match file size", path)
	}

	footer := make([]byte, FooterSize)
	if err := readAt(f, footer, bodyEnd); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(footer[4:8]) != header.DocCount ||
		int64(binary.LittleEndian.Uint64(footer[8:16])) != header.DictOffset ||
		int64(binary.LittleEndian.Uint64(footer[16:24])) != header.DictSize ||
		int64(binary.LittleEndian.Uint64(footer[24:32])) != header.StoredSize {
		return nil, corruptf("%s: footer does not match header", path)
	}
	checksum := crc32.NewIEEE()
	body := io.NewSectionReader(f, header.PostOffset, bodyEnd-header.PostOffset)
	if _, err := io.Copy(checksum, body); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "checksumming segment")
	}
	if checksum.Sum32() != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, corruptf("%s: checksum mismatch", path)
	}

	dictBytes := make([]byte, header.DictSize)
	if err := readAt(f, dictBytes, header.DictOffset); err != nil {
		return nil, err
	}
	dict, ok := decodeDict(dictBytes)
	if !ok {
		return nil, corruptf("%s: malformed dictionary", path)
	}
	if len(dict) != int(header.TermCount) {
		return nil, corruptf("%s: dictionary has %d terms, header says %d", path, len(dict), header.TermCount)
	}
	for i, e := range dict {
		if i > 0 && !dictLess(dict[i-1], e) {
			return nil, corruptf("%s: dictionary not sorted at %q/%q", path, e.Field, e.Term)
		}
		if e.PostLen <= 0 || e.PostOffset < 0 || e.PostOffset > header.PostSize-int64(e.PostLen) {
			return nil, corruptf("%s: postings for %q/%q out of range", path, e.Field, e.Term)
		}
		if e.DocFreq <= 0 || e.DocFreq > int(header.DocCount) {
			return nil, corruptf("%s: bad document frequency %d for %q/%q", path, e.DocFreq, e.Field, e.Term)
		}
	}

	storedBytes := make([]byte, header.StoredSize)
	if err := readAt(f, storedBytes, header.StoredOffset); err != nil {
		return nil, err
	}
	stored, ok := decodeStored(storedBytes)
	if !ok {
		return nil, corruptf("%s: malformed stored fields", path)
	}
	if len(stored) != int(header.DocCount) {
		return nil, corruptf("%s: %d stored records for %d documents", path, len(stored), header.DocCount)
	}

	return &Reader{
		file:     f,
		header:   header,
		dict:     dict,
		stored:   stored,
		postBase: header.PostOffset,
	}, nil
}

func dictLess(a, b DictEntry) bool {
	if a.Field != b.Field {
		return a.Field < b.Field
	}
	return a.Term < b.Term
}

// readAt treats a short read inside a declared section as corruption rather
// than an I/O failure.
func readAt(f *os.File, buf []byte, off int64) error {
	if _, err := f.ReadAt(buf, off); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return apperrors.Wrap(apperrors.ErrCorruptIndex, err, "truncated segment")
		}
		return apperrors.Wrap(apperrors.ErrIO, err, "reading segment")
	}
	return nil
}

func corruptf(format string, args ...any) error {
	return apperrors.Errorf(apperrors.ErrCorruptIndex, format, args...)
}

func (r *Reader) lookup(field, term string) (DictEntry, bool) {
	key := DictEntry{Field: field, Term: term}
	idx := sort.Search(len(r.dict), func(i int) bool {
		return !dictLess(r.dict[i], key)
	})
	if idx >= len(r.dict) || r.dict[idx].Field != field || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Search returns the postings for term in field, or nil when the term does
// not occur. Postings that contradict the dictionary are reported as
// ErrCorruptIndex.
func (r *Reader) Search(field, term string) (index.PostingList, error) {
	entry, ok := r.lookup(field, term)
	if !ok {
		return nil, nil
	}
	postingsBytes := make([]byte, entry.PostLen)
	if err := readAt(r.file, postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, err
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, err, fmt.Sprintf("parsing postings for %q/%q", field, term))
	}
	if len(postings) != entry.DocFreq {
		return nil, corruptf("%q/%q: %d postings, dictionary says %d", field, term, len(postings), entry.DocFreq)
	}
	prev := -1
	for _, p := range postings {
		if p.DocID <= prev || p.DocID >= int(r.header.DocCount) {
			return nil, corruptf("%q/%q: document id %d out of order or range", field, term, p.DocID)
		}
		if p.Frequency != len(p.Positions) || p.Frequency == 0 {
			return nil, corruptf("%q/%q: frequency %d with %d positions", field, term, p.Frequency, len(p.Positions))
		}
		prev = p.DocID
	}
	return postings, nil
}

// DocFreq reports how many documents contain term in field without reading
// the postings.
func (r *Reader) DocFreq(field, term string) int {
	entry, ok := r.lookup(field, term)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

// Stored returns a copy of the stored fields of docID.
func (r *Reader) Stored(docID int) (map[string]string, error) {
	if docID < 0 || docID >= len(r.stored) {
		return nil, apperrors.Errorf(apperrors.ErrInvalidDocumentID, "document %d not in [0, %d)", docID, len(r.stored))
	}
	return maps.Clone(r.stored[docID]), nil
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Generation() uint64 {
	return r.header.Generation
}

// CreatedAt is the time the segment was written, to the second.
func (r *Reader) CreatedAt() time.Time {
	return time.Unix(r.header.CreatedAt, 0)
}

func (r *Reader) Close() error {
	return r.file.Close()
}
