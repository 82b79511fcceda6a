// Package mocks provides centralized test doubles.
//
// Mocks use exported function fields for per-test behavior and track their
// calls under a mutex so they are safe to share with concurrent code:
//
//	import "github.com/phrazzld/prep-api/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    groq := mocks.NewMockProvider("groq",
//	        mocks.Reply{Err: &generation.ProviderError{Kind: generation.KindTimeout}},
//	        mocks.Reply{Text: `[{"question":"Q","answer":"A"}]`},
//	    )
//	    // Use the mock in your test...
//	}
package mocks
