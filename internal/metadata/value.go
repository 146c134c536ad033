package metadata

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined marks a field that was absent from the ingested record. It is
// distinct from nil, which marks a field that was present but empty.
var Undefined any = undefined{}

// IsNil returns true for nil and Undefined.
func IsNil(v any) bool {
	return v == nil || v == Undefined
}
