package segment

import (
	"encoding/binary"
	"math"
	"slices"
)

// The dictionary and stored sections hold raw strings behind uvarint lengths,
// so terms and values that are not valid UTF-8 survive unchanged.

// encodeDict writes
//
//	uvarint(entries) { field term uvarint(offset) uvarint(len) uvarint(docfreq) }
//
// with each string as uvarint(len) followed by its bytes.
func encodeDict(dict []DictEntry) []byte {
	buf := binary.AppendUvarint(nil, uint64(len(dict)))
	for _, e := range dict {
		buf = appendString(buf, e.Field)
		buf = appendString(buf, e.Term)
		buf = binary.AppendUvarint(buf, uint64(e.PostOffset))
		buf = binary.AppendUvarint(buf, uint64(e.PostLen))
		buf = binary.AppendUvarint(buf, uint64(e.DocFreq))
	}
	return buf
}

// decodeDict reverses encodeDict. Range checks on the numbers are left to
// the caller, which knows the section sizes.
func decodeDict(data []byte) (dict []DictEntry, ok bool) {
	d := &sectionDecoder{data: data}
	count := d.uvarint()
	// Every entry takes at least five bytes.
	if d.bad || count > uint64(len(d.data))/5 {
		return nil, false
	}
	dict = make([]DictEntry, 0, count)
	for range count {
		e := DictEntry{Field: d.string(), Term: d.string()}
		off, n, df := d.uvarint(), d.uvarint(), d.uvarint()
		if d.bad || off > math.MaxInt64 || n > math.MaxInt32 || df > math.MaxInt32 {
			return nil, false
		}
		e.PostOffset, e.PostLen, e.DocFreq = int64(off), int(n), int(df)
		dict = append(dict, e)
	}
	return dict, len(d.data) == 0
}

// encodeStored writes
//
//	uvarint(records) { uvarint(fields) { key value } }
//
// with keys in sorted order.
func encodeStored(stored []map[string]string) []byte {
	buf := binary.AppendUvarint(nil, uint64(len(stored)))
	for _, rec := range stored {
		buf = binary.AppendUvarint(buf, uint64(len(rec)))
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			buf = appendString(buf, k)
			buf = appendString(buf, rec[k])
		}
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// sectionDecoder walks an encoded section and remembers the first
// malformed length it meets.
type sectionDecoder struct {
	data []byte
	bad  bool
}

func (d *sectionDecoder) uvarint() uint64 {
	if d.bad {
		return 0
	}
	v, n := binary.Uvarint(d.data)
	if n <= 0 {
		d.bad = true
		return 0
	}
	d.data = d.data[n:]
	return v
}

func (d *sectionDecoder) string() string {
	n := d.uvarint()
	if d.bad || n > uint64(len(d.data)) {
		d.bad = true
		return ""
	}
	s := string(d.data[:n])
	d.data = d.data[n:]
	return s
}

// decodeStored reverses encodeStored. ok is false when the section is
// truncated, over-long, or its counts exceed what the bytes can hold.
func decodeStored(data []byte) (stored []map[string]string, ok bool) {
	d := &sectionDecoder{data: data}
	count := d.uvarint()
	// Every record takes at least one byte.
	if d.bad || count > uint64(len(d.data)) {
		return nil, false
	}
	stored = make([]map[string]string, 0, count)
	for range count {
		fields := d.uvarint()
		// Every field takes at least two bytes.
		if d.bad || fields > uint64(len(d.data))/2 {
			return nil, false
		}
		rec := make(map[string]string, fields)
		for range fields {
			k := d.string()
			v := d.string()
			if d.bad {
				return nil, false
			}
			if _, dup := rec[k]; dup {
				return nil, false
			}
			rec[k] = v
		}
		stored = append(stored, rec)
	}
	if len(d.data) != 0 {
		return nil, false
	}
	return stored, true
}
