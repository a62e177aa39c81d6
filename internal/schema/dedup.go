package schema

// DuplicateMessage is the error recorded on a second-or-later occurrence of
// an (order_id, item) key within one batch.
const DuplicateMessage = "Duplicate order_id and item"

type recordKey struct {
	orderID string
	item    string
}

// Deduper tracks (order_id, item) keys seen among valid records in one batch.
//
// Only valid records participate: invalid records are neither registered as
// seen nor flagged as duplicates. Records must be fed in batch order, since
// the first occurrence of a key is the canonical one.
type Deduper struct {
	seen map[recordKey]struct{}
}

// NewDeduper creates a Deduper scoped to a single batch.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[recordKey]struct{})}
}

// Apply marks rec invalid with DuplicateMessage if its key was already seen
// among prior valid records, and otherwise registers the key as seen.
// Returns true if the record was flagged as a duplicate.
func (d *Deduper) Apply(rec *Record) bool {
	if !rec.IsValid {
		return false
	}
	key := recordKey{orderID: *rec.OrderID, item: *rec.Item}
	if _, ok := d.seen[key]; ok {
		msg := DuplicateMessage
		rec.IsValid = false
		rec.ErrorMessage = &msg
		return true
	}
	d.seen[key] = struct{}{}
	return false
}
