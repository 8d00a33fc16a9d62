package docsync

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"
)

// MaxDocumentSize is the largest BSON document the reader accepts.
const MaxDocumentSize = 16 * 1024 * 1024

// Reader decodes a stream of concatenated BSON oplog documents, as written by
// mongodump for local.oplog.rs.
type Reader struct {
	r      *bufio.Reader
	offset int64
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next entry, or io.EOF once the stream is exhausted.
func (r *Reader) Next() (*Entry, error) {
	var head [4]byte
	if _, err := io.ReadFull(r.r, head[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Annotatef(err, "reading document length at offset %d", r.offset)
	}
	size := int(int32(binary.LittleEndian.Uint32(head[:])))
	if size < 5 || size > MaxDocumentSize {
		return nil, errors.NotValidf("document length %d at offset %d", size, r.offset)
	}
	buf := make([]byte, size)
	copy(buf, head[:])
	if _, err := io.ReadFull(r.r, buf[4:]); err != nil {
		return nil, errors.Annotatef(err, "reading document at offset %d", r.offset)
	}
	var e Entry
	if err := bson.Unmarshal(buf, &e); err != nil {
		return nil, errors.Annotatef(err, "decoding document at offset %d", r.offset)
	}
	r.offset += int64(size)
	return &e, nil
}
