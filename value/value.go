package value

import (
	"fmt"
	"time"
)

// Value is a tagged union over the engine's scalar and collection types.
// Just like the teacher's bare `interface{}`-typed Value, the payload is
// held as a plain Go value (int16, int32, int64, float32, float64, string, time.Time, OID,
// VObject, or []Value for collections) -- but every Value additionally
// carries its declared Type and an explicit null flag, because a null
// SMALLINT and a null CHAR must compare and encode differently even though
// neither carries a payload.
type Value struct {
	Type   Type
	Null   bool
	Scalar interface{}   // valid Go type depends on Type.Domain; nil when Null
	Coll   []Value       // populated only when Type.Domain.IsCollection()
}

// Null constructs a null value of the given domain.
func Null(t Type) Value {
	return Value{Type: t, Null: true}
}

func Smallint(v int16) Value {
	return Value{Type: Type{Domain: DomainSmallint}, Scalar: v}
}

func Int(v int32) Value {
	return Value{Type: Type{Domain: DomainInteger}, Scalar: v}
}

func Bigint(v int64) Value {
	return Value{Type: Type{Domain: DomainBigint}, Scalar: v}
}

func Float(v float32) Value {
	return Value{Type: Type{Domain: DomainFloat}, Scalar: v}
}

func Double(v float64) Value {
	return Value{Type: Type{Domain: DomainDouble}, Scalar: v}
}

// Numeric constructs a fixed-point decimal value. The payload is kept as
// the decimal's digit string as written (e.g. "12.50") rather than a
// float64, so the stored value is exact; Compare and SumAggregator convert
// it to float64 when they compute with it.
func Numeric(digits string, precision, scale int) Value {
	return Value{
		Type:   Type{Domain: DomainNumeric, Precision: precision, Scale: scale},
		Scalar: digits,
	}
}

func Char(s string, collation string) Value {
	return Value{Type: Type{Domain: DomainChar, Collation: collation}, Scalar: s}
}

func Date(t time.Time) Value {
	return Value{Type: Type{Domain: DomainDate}, Scalar: t}
}

func Timestamp(t time.Time) Value {
	return Value{Type: Type{Domain: DomainTimestamp}, Scalar: t}
}

func OIDValue(o OID) Value {
	return Value{Type: Type{Domain: DomainOID}, Scalar: o}
}

func VObjectValue(v VObject) Value {
	return Value{Type: Type{Domain: DomainVObject}, Scalar: v}
}

// Collection constructs a Set/Multiset/Sequence value. Per the data model,
// collection types may themselves contain null elements.
func Collection(domain Domain, element Type, elems []Value) Value {
	return Value{
		Type: Type{Domain: domain, Element: &element},
		Coll: elems,
	}
}

// Validate checks invariant I1: the declared domain matches the Go type of
// the carried payload. A collection Value is valid only if every element
// validates against the declared element type.
func (v Value) Validate() error {
	if v.Null {
		return nil
	}
	if v.Type.Domain.IsCollection() {
		if v.Type.Element == nil {
			return fmt.Errorf("value: collection domain %s missing element type", v.Type.Domain)
		}
		for i, e := range v.Coll {
			if e.Null {
				continue
			}
			if e.Type.Domain != v.Type.Element.Domain {
				return fmt.Errorf("value: collection element %d has domain %s, want %s", i, e.Type.Domain, v.Type.Element.Domain)
			}
			if err := e.Validate(); err != nil {
				return fmt.Errorf("value: collection element %d: %w", i, err)
			}
		}
		return nil
	}

	switch v.Type.Domain {
	case DomainSmallint:
		_, ok := v.Scalar.(int16)
		return domainMismatch(ok, v.Type.Domain, v.Scalar)
	case DomainInteger:
		_, ok := v.Scalar.(int32)
		return domainMismatch(ok, v.Type.Domain, v.Scalar)
	case DomainBigint:
		_, ok := v.Scalar.(int64)
		return domainMismatch(ok, v.Type.Domain, v.Scalar)
	case DomainFloat:
		_, ok := v.Scalar.(float32)
		return domainMismatch(ok, v.Type.Domain, v.Scalar)
	case DomainDouble:
		_, ok := v.Scalar.(float64)
		return domainMismatch(ok, v.Type.Domain, v.Scalar)
	case DomainNumeric:
		_, ok := v.Scalar.(string)
		return domainMismatch(ok, v.Type.Domain, v.Scalar)
	case DomainChar:
		_, ok := v.Scalar.(string)
		return domainMismatch(ok, v.Type.Domain, v.Scalar)
	case DomainDate, DomainTime, DomainTimestamp:
		_, ok := v.Scalar.(time.Time)
		return domainMismatch(ok, v.Type.Domain, v.Scalar)
	case DomainOID:
		_, ok := v.Scalar.(OID)
		return domainMismatch(ok, v.Type.Domain, v.Scalar)
	case DomainVObject:
		_, ok := v.Scalar.(VObject)
		return domainMismatch(ok, v.Type.Domain, v.Scalar)
	default:
		return fmt.Errorf("value: unknown domain %s", v.Type.Domain)
	}
}

func domainMismatch(ok bool, d Domain, payload interface{}) error {
	if ok {
		return nil
	}
	return fmt.Errorf("value: domain %s does not match payload of type %T", d, payload)
}

func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	if v.Type.Domain.IsCollection() {
		return fmt.Sprintf("%s%v", v.Type.Domain, v.Coll)
	}
	return fmt.Sprintf("%v", v.Scalar)
}
