package indexer

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// Reader is a read-only view of one committed index generation. It stays
// valid after the index is rebuilt until Close is called, and is safe for
// concurrent use.
type Reader struct {
	name string
	seg  *segment.Reader
}

// Open opens the committed generation of the index called name under root.
func Open(root, name string) (*Reader, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	dir := filepath.Join(root, name)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Errorf(apperrors.ErrIndexNotFound, "index %q", name)
		}
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "opening index "+name)
	}
	segName, err := readCurrent(dir)
	if err != nil {
		return nil, err
	}
	seg, err := segment.OpenReader(filepath.Join(dir, segName))
	if err != nil {
		if errors.Is(err, apperrors.ErrIndexNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, err, "CURRENT names a missing segment")
		}
		return nil, err
	}
	return &Reader{name: name, seg: seg}, nil
}

func (r *Reader) Name() string {
	return r.name
}

// LookupTerm returns the postings of term in field; an absent term yields an
// empty list and no error.
func (r *Reader) LookupTerm(field, term string) (index.PostingList, error) {
	return r.seg.Search(field, term)
}

func (r *Reader) DocFreq(field, term string) int {
	return r.seg.DocFreq(field, term)
}

func (r *Reader) DocumentCount() int {
	return int(r.seg.DocCount())
}

func (r *Reader) TermCount() int {
	return r.seg.Terms()
}

// StoredFields returns the stored values of docID, or ErrInvalidDocumentID.
func (r *Reader) StoredFields(docID int) (map[string]string, error) {
	return r.seg.Stored(docID)
}

func (r *Reader) Generation() uint64 {
	return r.seg.Generation()
}

// BuiltAt is when the open generation was committed.
func (r *Reader) BuiltAt() time.Time {
	return r.seg.CreatedAt()
}

func (r *Reader) Close() error {
	return r.seg.Close()
}
