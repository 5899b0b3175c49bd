// Package value implements the tagged-union Value type and typed Domain
// that every tuple column in the query engine is built from.
package value

import "fmt"

// Domain names a scalar or collection type a Value can carry. Every Value
// declares its Domain explicitly (spec invariant: a value's declared domain
// always matches its discriminant) rather than relying on a bare Go type
// switch, because downstream code (sort-key comparison, wire encoding,
// representation-id checks) needs the domain even for a null value.
type Domain int

const (
	DomainNull Domain = iota
	DomainSmallint
	DomainInteger
	DomainBigint
	DomainFloat
	DomainDouble
	DomainNumeric // decimal/numeric, see Type.Precision/Scale
	DomainChar    // fixed or varying character string, see Type.Collation
	DomainDate
	DomainTime
	DomainTimestamp
	DomainOID
	DomainVObject // (proxy OID, real OID) composite
	DomainSet
	DomainMultiset
	DomainSequence
)

func (d Domain) String() string {
	switch d {
	case DomainNull:
		return "NULL"
	case DomainSmallint:
		return "SMALLINT"
	case DomainInteger:
		return "INTEGER"
	case DomainBigint:
		return "BIGINT"
	case DomainFloat:
		return "FLOAT"
	case DomainDouble:
		return "DOUBLE"
	case DomainNumeric:
		return "NUMERIC"
	case DomainChar:
		return "CHAR"
	case DomainDate:
		return "DATE"
	case DomainTime:
		return "TIME"
	case DomainTimestamp:
		return "TIMESTAMP"
	case DomainOID:
		return "OID"
	case DomainVObject:
		return "VOBJECT"
	case DomainSet:
		return "SET"
	case DomainMultiset:
		return "MULTISET"
	case DomainSequence:
		return "SEQUENCE"
	default:
		return fmt.Sprintf("DOMAIN(%d)", int(d))
	}
}

// IsCollection reports whether the domain holds zero or more element Values
// rather than a single scalar.
func (d Domain) IsCollection() bool {
	return d == DomainSet || d == DomainMultiset || d == DomainSequence
}

// Type is a Value's full declared domain: the discriminant plus the
// precision/scale/collation metadata that distinguishes e.g. NUMERIC(10,2)
// from NUMERIC(5,0), or a case-insensitive CHAR collation from a binary one.
type Type struct {
	Domain    Domain
	Precision int    // NUMERIC/CHAR length; 0 means "unspecified"
	Scale     int    // NUMERIC scale
	Collation string // empty means the engine's default collation
	Element   *Type  // element type for Set/Multiset/Sequence; nil otherwise
}

// OID is an object identifier: the (volume, page, slot) triple that
// addresses one instance's heap record.
type OID struct {
	Volume int32
	Page   int32
	Slot   int16
}

func (o OID) IsNull() bool {
	return o.Volume < 0 || o.Page < 0
}

func (o OID) String() string {
	return fmt.Sprintf("@%d|%d|%d", o.Volume, o.Page, o.Slot)
}

// NullOID is the canonical "no object" OID (mirrors the storage layer's
// NULL_VOLID/NULL_PAGEID convention).
var NullOID = OID{Volume: -1, Page: -1, Slot: -1}

// VObject is a "virtual object": a proxy OID standing in for a real one,
// used when a row has been relocated (e.g. by partition repartitioning)
// but callers still hold the original identity.
type VObject struct {
	Proxy OID
	Real  OID
}
