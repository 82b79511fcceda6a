// Package gemini provides a generation.Provider backed by Google's Gemini API.
//
// The adapter sends the rendered task instruction to each configured model in
// turn, asking for a JSON response, and returns the raw answer text. It never
// parses the answer; repair and shape checks belong to generation.Normalize.
//
// Client errors are translated into generation.ProviderError values so the
// orchestrator can decide whether to retry:
//   - 401/403, or a 400 complaining about the API key: auth
//   - 429: rate_limited, or quota_exceeded when the message mentions quota
//   - 5xx: unavailable; deadlines: timeout
//
// The package depends on the google.golang.org/genai client library.
package gemini
