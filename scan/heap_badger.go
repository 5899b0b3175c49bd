package scan

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/relcore/xqe/value"
)

func init() {
	gob.Register(time.Time{})
	gob.Register(value.OID{})
	gob.Register(value.VObject{})
}

// BadgerHeap is a Heap adapter backed by BadgerDB, grounded on the
// teacher's storage.BadgerStore: a single key-value database holding one
// row per OID-derived key. BadgerIndex, below, shares the same database
// and serves Index.Range. The real heap file / B-tree layer is
// out of scope (spec.md §1); this is the concrete stand-in SPEC_FULL.md's
// domain stack calls for.
type BadgerHeap struct {
	db     *badger.DB
	prefix []byte
}

// OpenBadgerHeap opens (creating if absent) a BadgerDB at path, storing
// rows for one logical class under prefix.
func OpenBadgerHeap(path string, prefix string) (*BadgerHeap, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("scan: open badger heap: %w", err)
	}
	return &BadgerHeap{db: db, prefix: []byte(prefix)}, nil
}

func (h *BadgerHeap) Close() error {
	return h.db.Close()
}

func oidKey(prefix []byte, oid value.OID) []byte {
	buf := make([]byte, len(prefix)+10)
	copy(buf, prefix)
	off := len(prefix)
	binary.BigEndian.PutUint32(buf[off:], uint32(oid.Volume))
	binary.BigEndian.PutUint32(buf[off+4:], uint32(oid.Page))
	binary.BigEndian.PutUint16(buf[off+8:], uint16(oid.Slot))
	return buf
}

func encodeRow(row []value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(row); err != nil {
		return nil, fmt.Errorf("scan: encode row: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRow(data []byte) ([]value.Value, error) {
	var row []value.Value
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&row); err != nil {
		return nil, fmt.Errorf("scan: decode row: %w", err)
	}
	return row, nil
}

// Put writes one record keyed by its OID, implementing the write side of
// the heap contract for tests and the loader path.
func (h *BadgerHeap) Put(oid value.OID, row []value.Value) error {
	data, err := encodeRow(row)
	if err != nil {
		return err
	}
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(oidKey(h.prefix, oid), data)
	})
}

// Scan implements Heap: every record under prefix, in key (OID) order.
func (h *BadgerHeap) Scan() ([]Record, error) {
	var out []Record
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = h.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(h.prefix); it.ValidForPrefix(h.prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			oid, err := decodeOIDKey(h.prefix, key)
			if err != nil {
				return err
			}
			var row []value.Value
			if err := item.Value(func(val []byte) error {
				r, err := decodeRow(val)
				row = r
				return err
			}); err != nil {
				return err
			}
			out = append(out, Record{OID: oid, Row: row})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan: badger heap scan: %w", err)
	}
	return out, nil
}

func decodeOIDKey(prefix, key []byte) (value.OID, error) {
	if len(key) != len(prefix)+10 {
		return value.OID{}, fmt.Errorf("scan: malformed heap key")
	}
	off := len(prefix)
	return value.OID{
		Volume: int32(binary.BigEndian.Uint32(key[off:])),
		Page:   int32(binary.BigEndian.Uint32(key[off+4:])),
		Slot:   int16(binary.BigEndian.Uint16(key[off+8:])),
	}, nil
}

// BadgerIndex is an Index adapter over the same BadgerDB keyed by a
// column value rather than OID, grounded on the same BadgerStore range
// scan idiom (NewIterator + Seek + ValidForPrefix).
type BadgerIndex struct {
	db     *badger.DB
	prefix []byte
}

func NewBadgerIndex(heap *BadgerHeap, indexPrefix string) *BadgerIndex {
	return &BadgerIndex{db: heap.db, prefix: []byte(indexPrefix)}
}

// PutKey indexes row under key, pointing back at oid.
func (x *BadgerIndex) PutKey(key value.Value, oid value.OID, row []value.Value) error {
	kb, err := encodeIndexKey(x.prefix, key, oid)
	if err != nil {
		return err
	}
	data, err := encodeRow(row)
	if err != nil {
		return err
	}
	return x.db.Update(func(txn *badger.Txn) error {
		return txn.Set(kb, data)
	})
}

func encodeIndexKey(prefix []byte, key value.Value, oid value.OID) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(prefix)
	if err := gob.NewEncoder(&buf).Encode(key); err != nil {
		return nil, fmt.Errorf("scan: encode index key: %w", err)
	}
	buf.Write(oidKey(nil, oid))
	return buf.Bytes(), nil
}

// Range implements Index: every record whose index key falls in
// [low, high). A zero Value on either bound means unbounded on that side.
func (x *BadgerIndex) Range(low, high value.Value) ([]Record, error) {
	var out []Record
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = x.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(x.prefix); it.ValidForPrefix(x.prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			idxVal, oid, err := decodeIndexKey(x.prefix, key)
			if err != nil {
				return err
			}
			if !low.Null && low.Type.Domain != value.DomainNull && value.SortOrder(idxVal, low) < 0 {
				continue
			}
			if !high.Null && high.Type.Domain != value.DomainNull && value.SortOrder(idxVal, high) >= 0 {
				continue
			}
			var row []value.Value
			if err := item.Value(func(val []byte) error {
				r, err := decodeRow(val)
				row = r
				return err
			}); err != nil {
				return err
			}
			out = append(out, Record{OID: oid, Row: row})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan: badger index range: %w", err)
	}
	return out, nil
}

func decodeIndexKey(prefix, key []byte) (value.Value, value.OID, error) {
	rest := key[len(prefix):]
	if len(rest) < 10 {
		return value.Value{}, value.OID{}, fmt.Errorf("scan: malformed index key")
	}
	oidBytes := rest[len(rest)-10:]
	keyBytes := rest[:len(rest)-10]
	var v value.Value
	if err := gob.NewDecoder(bytes.NewReader(keyBytes)).Decode(&v); err != nil {
		return value.Value{}, value.OID{}, fmt.Errorf("scan: decode index key: %w", err)
	}
	oid, err := decodeOIDKey(nil, oidBytes)
	return v, oid, err
}
