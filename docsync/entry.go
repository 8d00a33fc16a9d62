package docsync

import (
	"strings"

	"github.com/juju/mgo/v3/bson"
)

// Oplog operation codes.
const (
	OpInsert  = "i"
	OpUpdate  = "u"
	OpDelete  = "d"
	OpCommand = "c"
	OpNoop    = "n"
)

// Entry is one oplog record.
type Entry struct {
	Ts        bson.MongoTimestamp `bson:"ts"`
	Op        string              `bson:"op"`
	Namespace string              `bson:"ns"`
	// Object is the inserted document, the replacement document of an
	// update, or the key of a deleted document.
	Object bson.M `bson:"o"`
	// Object2 holds the key of an updated document.
	Object2 bson.M `bson:"o2,omitempty"`
}

// Timestamp returns the entry timestamp as the integer stored in the index.
func (e *Entry) Timestamp() int64 {
	return int64(e.Ts)
}

// isOperatorUpdate reports whether the entry carries update operators such
// as $set instead of a full replacement document.
func (e *Entry) isOperatorUpdate() bool {
	for k := range e.Object {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}
