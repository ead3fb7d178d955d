package store

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/wbrown/trck"
	"github.com/wbrown/trck/cursor"
)

// Key prefixes. Events are keyed by uuid+sequence so a per-subject scan is
// a single ordered badger range; lexicon entries are keyed two ways (id
// lookup and reverse string lookup) so both directions stay O(1).
const (
	prefixEvent     = byte('e')
	prefixFieldName = byte('n') // name -> field id
	prefixFieldID   = byte('i') // field id -> name
	prefixLexicon   = byte('l') // field id, value id -> string
	prefixLexiconR  = byte('r') // field id, string -> value id
	prefixMeta      = byte('m')
)

var keyMaxTimestamp = []byte{prefixMeta, 't'}

// BadgerStore is a columnar trail store backed by BadgerDB, adapted from
// the key-value encoding a Datalog store uses for its own indices: one
// flat keyspace, prefix-partitioned by concern, with BadgerDB's own
// compression and block cache doing the heavy lifting for a read-mostly
// workload.
type BadgerStore struct {
	db *badger.DB
}

// badgerOptions tunes the underlying BadgerDB instance for this store's
// read-heavy, append-mostly access pattern.
func badgerOptions(path string) badger.Options {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.MemTableSize = 128 << 20
	opts.BlockCacheSize = 256 << 20
	opts.IndexCacheSize = 100 << 20
	opts.DetectConflicts = false
	opts.NumCompactors = 4
	opts.ValueThreshold = 1 << 10
	return opts
}

// Open opens (creating if necessary) a BadgerDB-backed store at path.
func Open(path string) (*BadgerStore, error) {
	db, err := badger.Open(badgerOptions(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func fieldNameKey(name string) []byte {
	return append([]byte{prefixFieldName}, []byte(name)...)
}

func fieldIDKey(id trck.FieldID) []byte {
	buf := make([]byte, 5)
	buf[0] = prefixFieldID
	binary.BigEndian.PutUint32(buf[1:], uint32(id))
	return buf
}

func lexiconKey(field trck.FieldID, value trck.ValueID) []byte {
	buf := make([]byte, 9)
	buf[0] = prefixLexicon
	binary.BigEndian.PutUint32(buf[1:5], uint32(field))
	binary.BigEndian.PutUint32(buf[5:9], uint32(value))
	return buf
}

func lexiconReverseKey(field trck.FieldID, value string) []byte {
	buf := make([]byte, 5, 5+len(value))
	buf[0] = prefixLexiconR
	binary.BigEndian.PutUint32(buf[1:5], uint32(field))
	return append(buf, []byte(value)...)
}

func eventKeyPrefix(uuid trck.UUID) []byte {
	buf := make([]byte, 17)
	buf[0] = prefixEvent
	copy(buf[1:], uuid[:])
	return buf
}

func eventKey(uuid trck.UUID, seq uint64) []byte {
	buf := make([]byte, 25)
	buf[0] = prefixEvent
	copy(buf[1:17], uuid[:])
	binary.BigEndian.PutUint64(buf[17:], seq)
	return buf
}

// FieldID implements Store.
func (s *BadgerStore) FieldID(name string) (trck.FieldID, bool) {
	var id trck.FieldID
	var found bool
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fieldNameKey(name))
		if err != nil {
			return nil // not found
		}
		return item.Value(func(val []byte) error {
			id = trck.FieldID(binary.BigEndian.Uint32(val))
			found = true
			return nil
		})
	})
	return id, found
}

// ValueID implements Store.
func (s *BadgerStore) ValueID(field trck.FieldID, value string) (trck.ValueID, bool) {
	var id trck.ValueID
	var found bool
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lexiconReverseKey(field, value))
		if err != nil {
			return nil
		}
		return item.Value(func(val []byte) error {
			id = trck.ValueID(binary.BigEndian.Uint32(val))
			found = true
			return nil
		})
	})
	return id, found
}

// Lexicon implements Store.
func (s *BadgerStore) Lexicon(field trck.FieldID) []string {
	var values []string
	prefix := make([]byte, 5)
	prefix[0] = prefixLexicon
	binary.BigEndian.PutUint32(prefix[1:], uint32(field))

	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		// collect into id->string then sort by id; ids are dense and
		// small in practice so a map suffices here.
		byID := map[trck.ValueID]string{}
		maxID := trck.ValueID(-1)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			id := trck.ValueID(binary.BigEndian.Uint32(key[5:9]))
			err := it.Item().Value(func(val []byte) error {
				byID[id] = string(val)
				return nil
			})
			if err != nil {
				return err
			}
			if id > maxID {
				maxID = id
			}
		}
		for i := trck.ValueID(0); i <= maxID; i++ {
			values = append(values, byID[i])
		}
		return nil
	})
	return values
}

// MaxTimestamp implements Store.
func (s *BadgerStore) MaxTimestamp() uint64 {
	var ts uint64
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyMaxTimestamp)
		if err != nil {
			return nil
		}
		return item.Value(func(val []byte) error {
			ts = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	return ts
}

// NumTrails implements Store.
func (s *BadgerStore) NumTrails() int64 {
	var count int64
	var lastUUID trck.UUID
	haveLast := false

	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte{prefixEvent}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			var uuid trck.UUID
			copy(uuid[:], key[1:17])
			if haveLast && uuid == lastUUID {
				continue
			}
			lastUUID = uuid
			haveLast = true
			count++
		}
		return nil
	})
	return count
}

// Trails implements Store.
func (s *BadgerStore) Trails() (TrailIterator, error) {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	prefix := []byte{prefixEvent}
	it.Seek(prefix)
	return &badgerTrailIterator{txn: txn, it: it, prefix: prefix}, nil
}

type badgerTrailIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	lastSet bool
	last    trck.UUID
}

func (ti *badgerTrailIterator) Next() (trck.UUID, bool, error) {
	for ti.it.ValidForPrefix(ti.prefix) {
		key := ti.it.Item().Key()
		var uuid trck.UUID
		copy(uuid[:], key[1:17])
		ti.it.Next()
		if ti.lastSet && uuid == ti.last {
			continue
		}
		ti.last, ti.lastSet = uuid, true
		return uuid, true, nil
	}
	return trck.UUID{}, false, nil
}

func (ti *badgerTrailIterator) Close() error {
	ti.it.Close()
	ti.txn.Discard()
	return nil
}

// OpenTrail implements Store.
func (s *BadgerStore) OpenTrail(uuid trck.UUID) (cursor.RawReader, bool, error) {
	prefix := eventKeyPrefix(uuid)
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 1000
	it := txn.NewIterator(opts)
	it.Seek(prefix)

	if !it.ValidForPrefix(prefix) {
		it.Close()
		txn.Discard()
		return nil, false, nil
	}

	return &badgerRawReader{txn: txn, it: it, prefix: prefix}, true, nil
}

type badgerRawReader struct {
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte
}

// Next implements cursor.RawReader.
func (r *badgerRawReader) Next() (trck.Event, bool, error) {
	if !r.it.ValidForPrefix(r.prefix) {
		r.it.Close()
		r.txn.Discard()
		return trck.Event{}, false, nil
	}

	var ev trck.Event
	err := r.it.Item().Value(func(val []byte) error {
		e, err := decodeEvent(val)
		if err != nil {
			return err
		}
		ev = e
		return nil
	})
	if err != nil {
		r.it.Close()
		r.txn.Discard()
		return trck.Event{}, false, err
	}
	r.it.Next()
	return ev, true, nil
}

// encodeEvent/decodeEvent give each event a flat big-endian layout:
// timestamp (8 bytes), item count (4 bytes), then item-count pairs of
// (field id, value id), 4 bytes each.
func encodeEvent(ev trck.Event) []byte {
	buf := make([]byte, 12+8*len(ev.Items))
	binary.BigEndian.PutUint64(buf[0:8], ev.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(ev.Items)))
	off := 12
	for _, it := range ev.Items {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(it.Field))
		binary.BigEndian.PutUint32(buf[off+4:off+8], uint32(it.Value))
		off += 8
	}
	return buf
}

func decodeEvent(buf []byte) (trck.Event, error) {
	if len(buf) < 12 {
		return trck.Event{}, fmt.Errorf("store: event record too short (%d bytes)", len(buf))
	}
	ev := trck.Event{Timestamp: binary.BigEndian.Uint64(buf[0:8])}
	n := binary.BigEndian.Uint32(buf[8:12])
	off := 12
	for i := uint32(0); i < n; i++ {
		if off+8 > len(buf) {
			return trck.Event{}, fmt.Errorf("store: event record truncated")
		}
		ev.Items = append(ev.Items, trck.Item{
			Field: trck.FieldID(binary.BigEndian.Uint32(buf[off : off+4])),
			Value: trck.ValueID(binary.BigEndian.Uint32(buf[off+4 : off+8])),
		})
		off += 8
	}
	return ev, nil
}

// Loader appends events to a BadgerStore, assigning field and value ids
// as new names/values are seen. It is the write-side counterpart used to
// build a store from scratch (see cmd/trck's demo data and the test
// suite); the engine itself only ever reads.
type Loader struct {
	s       *BadgerStore
	nextSeq map[trck.UUID]uint64
}

// NewLoader returns a Loader writing into s.
func NewLoader(s *BadgerStore) *Loader {
	return &Loader{s: s, nextSeq: make(map[trck.UUID]uint64)}
}

// FieldID returns field's id, assigning a new one (and registering the
// canonical empty string at value id 0) if name has not been seen before
// in this store.
func (l *Loader) FieldID(name string) (trck.FieldID, error) {
	if id, ok := l.s.FieldID(name); ok {
		return id, nil
	}

	var id trck.FieldID
	err := l.s.db.Update(func(txn *badger.Txn) error {
		id = trck.FieldID(l.countFields(txn))
		if err := txn.Set(fieldNameKey(name), encodeFieldID(id)); err != nil {
			return err
		}
		if err := txn.Set(fieldIDKey(id), []byte(name)); err != nil {
			return err
		}
		if err := txn.Set(lexiconKey(id, 0), []byte("")); err != nil {
			return err
		}
		return txn.Set(lexiconReverseKey(id, ""), encodeValueID(0))
	})
	return id, err
}

func (l *Loader) countFields(txn *badger.Txn) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	prefix := []byte{prefixFieldID}
	count := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		count++
	}
	return count
}

func encodeFieldID(id trck.FieldID) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(id))
	return buf
}

func encodeValueID(id trck.ValueID) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(id))
	return buf
}

// ValueID returns value's id within field's lexicon, assigning the next
// free id if value has not been seen before.
func (l *Loader) ValueID(field trck.FieldID, value string) (trck.ValueID, error) {
	if value == "" {
		return 0, nil
	}
	if id, ok := l.s.ValueID(field, value); ok {
		return id, nil
	}

	var id trck.ValueID
	err := l.s.db.Update(func(txn *badger.Txn) error {
		id = trck.ValueID(len(l.s.Lexicon(field)))
		if id == 0 {
			id = 1
		}
		if err := txn.Set(lexiconKey(field, id), []byte(value)); err != nil {
			return err
		}
		return txn.Set(lexiconReverseKey(field, value), encodeValueID(id))
	})
	return id, err
}

// AppendEvent appends ev to uuid's trail, in call order, and extends the
// store's MaxTimestamp bookkeeping if ev.Timestamp is the new high-water
// mark.
func (l *Loader) AppendEvent(uuid trck.UUID, ev trck.Event) error {
	seq := l.nextSeq[uuid]
	l.nextSeq[uuid] = seq + 1

	return l.s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(eventKey(uuid, seq), encodeEvent(ev)); err != nil {
			return err
		}

		item, err := txn.Get(keyMaxTimestamp)
		cur := uint64(0)
		if err == nil {
			_ = item.Value(func(val []byte) error {
				cur = binary.BigEndian.Uint64(val)
				return nil
			})
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if ev.Timestamp > cur {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, ev.Timestamp)
			if err := txn.Set(keyMaxTimestamp, buf); err != nil {
				return err
			}
		}
		return nil
	})
}
