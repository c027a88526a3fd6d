package storage

type selectorKind int

const (
	selectLatest selectorKind = iota
	selectSequence
	selectPredicate
)

// Selector chooses which version of a key a lookup accepts.
// The zero value selects the latest version.
type Selector struct {
	kind      selectorKind
	sequence  uint64
	predicate func(*Record) bool
}

// Latest accepts the newest record.
func Latest() Selector {
	return Selector{kind: selectLatest}
}

// ExactSequence accepts the record with the given sequence.
func ExactSequence(sequence uint64) Selector {
	return Selector{kind: selectSequence, sequence: sequence}
}

// Predicate accepts the newest record for which fn returns true.
// A nil fn behaves like Latest.
func Predicate(fn func(*Record) bool) Selector {
	if fn == nil {
		return Latest()
	}
	return Selector{kind: selectPredicate, predicate: fn}
}

// Match reports whether the record satisfies the selector.
func (s Selector) Match(record *Record) bool {
	switch s.kind {
	case selectSequence:
		return record.Sequence == s.sequence
	case selectPredicate:
		return s.predicate(record)
	default:
		return true
	}
}

// Beyond reports whether the selector asks for a sequence newer than latest,
// which no record in a chain ending at latest can satisfy.
func (s Selector) Beyond(latest uint64) bool {
	return s.kind == selectSequence && s.sequence > latest
}
