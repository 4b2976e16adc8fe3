package persona

import "fmt"

// namePools are invented-name candidates per gender, exhausted in order and
// reused with a numeric suffix once a pool runs dry. These are stage names
// assigned to dynamically researched guests, not the names of real people.
var namePools = map[Gender][]string{
	GenderMale: {
		"Marcus", "Julian", "Elias", "Desmond", "Roland",
		"Theo", "Nathaniel", "Calvin", "Emmett", "Dashiell",
	},
	GenderFemale: {
		"Odette", "Wren", "Imogen", "Sable", "Vesper",
		"Thea", "Maren", "Juniper", "Rosalind", "Sloane",
	},
	GenderNeutral: {
		"Quinn", "Sage", "Robin", "Ellis", "Lennox",
		"Remy", "Arden", "Briar", "Shiloh", "Tatum",
	},
}

// nameAllocator assigns invented names from the per-gender pool, skipping
// names already used in the task and falling back to a numeric suffix once
// the pool is exhausted.
type nameAllocator struct {
	used map[string]bool
	idx  map[Gender]int
}

func newNameAllocator() *nameAllocator {
	return &nameAllocator{used: make(map[string]bool), idx: make(map[Gender]int)}
}

func (a *nameAllocator) next(gender Gender) string {
	pool := namePools[gender]
	if len(pool) == 0 {
		pool = namePools[GenderNeutral]
	}
	for a.idx[gender] < len(pool) {
		candidate := pool[a.idx[gender]]
		a.idx[gender]++
		if !a.used[candidate] {
			a.used[candidate] = true
			return candidate
		}
	}
	// Pool exhausted: restart from the top with a numeric suffix,
	// continuing to bump the suffix until an unused name is found.
	for suffix := 2; ; suffix++ {
		for _, base := range pool {
			candidate := fmt.Sprintf("%s (%d)", base, suffix)
			if !a.used[candidate] {
				a.used[candidate] = true
				return candidate
			}
		}
	}
}
