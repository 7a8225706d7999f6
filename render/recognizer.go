package render

import "sync"

// Recognizer renders values of types that need a fixed field template,
// such as network requests and responses.
type Recognizer interface {
	// Recognizes reports whether Render can handle value.
	Recognizes(value any) bool
	// Render returns the text for value named name.
	Render(name string, value any) string
}

var (
	registryMu sync.Mutex
	registry   []Recognizer
	frozen     bool

	resolveOnce sync.Once
	resolved    []Recognizer
)

// Register adds a recognizer. It must be called from an init function;
// the set of recognizers is fixed by the first call to Render.
func Register(r Recognizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if frozen {
		panic("render: Register called after first use")
	}
	registry = append(registry, r)
}

// ExchangeEnabled reports whether any recognizer was registered.
// Without recognizers the exchange branch of Render is never taken.
func ExchangeEnabled() bool {
	return len(recognizers()) > 0
}

func recognizers() []Recognizer {
	resolveOnce.Do(func() {
		registryMu.Lock()
		defer registryMu.Unlock()
		frozen = true
		resolved = registry
	})
	return resolved
}
