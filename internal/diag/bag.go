package diag

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"fortio.org/safecast"
)

// Bag collects diagnostics up to a limit. It is safe for concurrent use by
// the batch driver's workers.
type Bag struct {
	mu    sync.Mutex
	items []Diagnostic
	max   uint16
}

func NewBag(max int) *Bag {
	capped, err := safecast.Conv[uint16](max)
	if err != nil {
		capped = ^uint16(0)
	}
	return &Bag{items: make([]Diagnostic, 0, min(int(capped), 64)), max: capped}
}

// Add добавляет диагностику, учитывая лимит.
// Возвращает false, если диагностика не добавлена (достигнут лимит).
func (b *Bag) Add(d Diagnostic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= int(b.max) {
		return false
	}
	b.items = append(b.items, d)
	return true
}

// AddError records err. *Error values keep their code; anything else becomes
// a BatchFailure at the given location.
func (b *Bag) AddError(at Location, err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return b.Add(de.Diagnostic)
	}
	return b.Add(Diagnostic{Severity: SevError, Code: BatchFailure, Message: err.Error(), At: at})
}

func (b *Bag) Cap() uint16 {
	return b.max
}

// HasErrors возвращает true, если есть хотя бы одна диагностика с Severity >= Error
func (b *Bag) HasErrors() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Items returns a copy of the collected diagnostics.
func (b *Bag) Items() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items)
}

// Merge объединяет диагностики из другого Bag.
func (b *Bag) Merge(other *Bag) {
	items := other.Items()
	b.mu.Lock()
	defer b.mu.Unlock()
	if total := len(b.items) + len(items); total > int(b.max) {
		if grown, err := safecast.Conv[uint16](total); err == nil {
			b.max = grown
		} else {
			b.max = ^uint16(0)
		}
	}
	b.items = append(b.items, items...)
}

// Sort orders diagnostics by function, instruction path, severity (desc)
// and code.
func (b *Bag) Sort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	slices.SortStableFunc(b.items, func(di, dj Diagnostic) int {
		if c := strings.Compare(di.At.Func, dj.At.Func); c != 0 {
			return c
		}
		if c := slices.Compare(di.At.Path, dj.At.Path); c != 0 {
			return c
		}
		if di.Severity != dj.Severity {
			return int(dj.Severity) - int(di.Severity)
		}
		return int(di.Code) - int(dj.Code)
	})
}

// простая дедупликация (по Code+At+Message)
func (b *Bag) Dedup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[string]bool, len(b.items))
	kept := b.items[:0]
	for _, d := range b.items {
		key := d.Code.ID() + "|" + d.At.String() + "|" + d.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, d)
	}
	b.items = kept
}

// Err joins all error diagnostics into one error, or returns nil.
func (b *Bag) Err() error {
	var errs []error
	for _, d := range b.Items() {
		if d.Severity >= SevError {
			errs = append(errs, &Error{d})
		}
	}
	return errors.Join(errs...)
}
