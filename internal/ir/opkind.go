package ir

import (
	"fmt"
	"strings"
	"sync"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"
)

// OpKind identifies an operator. Values returned by GetOpKind for the same
// name compare equal with ==; the zero OpKind is invalid.
type OpKind struct {
	sym *opSymbol
}

type opSymbol struct {
	id   uint32
	name string
	hash Hash
}

// opTable is the process-wide symbol table shared by every trace.
var opTable = struct {
	mu     sync.RWMutex
	byName map[string]*opSymbol
	byID   []*opSymbol
}{
	byName: make(map[string]*opSymbol, 64),
}

// GetOpKind returns the canonical OpKind for name, interning it on first use.
// Operators specific to the backend conventionally live under "xla::".
func GetOpKind(name string) OpKind {
	name = norm.NFC.String(name)

	opTable.mu.RLock()
	sym, ok := opTable.byName[name]
	opTable.mu.RUnlock()
	if ok {
		return OpKind{sym: sym}
	}

	opTable.mu.Lock()
	defer opTable.mu.Unlock()
	// another goroutine may have won the race
	if sym, ok := opTable.byName[name]; ok {
		return OpKind{sym: sym}
	}
	id, err := safecast.Conv[uint32](len(opTable.byID) + 1)
	if err != nil {
		panic(fmt.Errorf("op kind table overflow: %w", err))
	}
	cpy := strings.Clone(name)
	sym = &opSymbol{id: id, name: cpy, hash: HashString(cpy)}
	opTable.byName[cpy] = sym
	opTable.byID = append(opTable.byID, sym)
	return OpKind{sym: sym}
}

// LookupOpKind returns the OpKind for name without interning it.
func LookupOpKind(name string) (OpKind, bool) {
	name = norm.NFC.String(name)
	opTable.mu.RLock()
	defer opTable.mu.RUnlock()
	sym, ok := opTable.byName[name]
	if !ok {
		return OpKind{}, false
	}
	return OpKind{sym: sym}, true
}

// OpKindCount returns the number of interned operator names.
func OpKindCount() int {
	opTable.mu.RLock()
	defer opTable.mu.RUnlock()
	return len(opTable.byID)
}

// Valid reports whether k was obtained from GetOpKind.
func (k OpKind) Valid() bool {
	return k.sym != nil
}

// ID returns the stable integer key of the symbol (0 for the zero OpKind).
// Keys follow interning order and are only stable within one process.
func (k OpKind) ID() uint32 {
	if k.sym == nil {
		return 0
	}
	return k.sym.id
}

// Less orders kinds by their integer key.
func (k OpKind) Less(other OpKind) bool {
	return k.ID() < other.ID()
}

// Compare returns -1, 0 or +1 following Less.
func (k OpKind) Compare(other OpKind) int {
	switch a, b := k.ID(), other.ID(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Hash returns a hash of the operator name, stable across processes.
func (k OpKind) Hash() Hash {
	if k.sym == nil {
		return 0
	}
	return k.sym.hash
}

// String returns the qualified operator name.
func (k OpKind) String() string {
	if k.sym == nil {
		return "<invalid>"
	}
	return k.sym.name
}
