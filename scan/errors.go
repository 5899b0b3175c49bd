package scan

import "errors"

var (
	errGroupedClassAttribute   = errors.New("scan: a class-attribute scan must not be grouped")
	errGroupedCompositeLocking = errors.New("scan: a composite-locking scan must not be grouped")
	errGroupedInnerOuterJoin   = errors.New("scan: the inner scan of an outer join must not be grouped")
	errPositionOutOfRange      = errors.New("scan: position out of range")
)
