package index

// Posting records one document's occurrences of a term.
type Posting struct {
	DocID     int   `json:"d"`
	Frequency int   `json:"f"`
	Positions []int `json:"p"`
}

// PostingList is ordered by strictly increasing DocID.
type PostingList []Posting

// TermEntry is one term dictionary row: a term of a field and its postings.
type TermEntry struct {
	Field    string
	Term     string
	Postings PostingList
}

// Less orders entries by field, then term. Segment dictionaries are
// written in this order.
func (e TermEntry) Less(other TermEntry) bool {
	if e.Field != other.Field {
		return e.Field < other.Field
	}
	return e.Term < other.Term
}

// Find returns the posting for docID using binary search.
func (pl PostingList) Find(docID int) (Posting, bool) {
	lo, hi := 0, len(pl)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if pl[mid].DocID < docID {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(pl) && pl[lo].DocID == docID {
		return pl[lo], true
	}
	return Posting{}, false
}
