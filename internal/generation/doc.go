// Package generation turns interview-prep requests into structured content
// produced by AI model providers.
//
// A Service validates a request, applies the caller's per-task quota, renders
// the task prompt from a PromptCatalog and hands it to an Orchestrator. The
// orchestrator walks an ordered chain of Provider adapters, retrying each one
// under a RetryPolicy, and accepts the first answer that Normalize can turn
// into the expected Shape. When every provider fails, the AggregateError it
// returns is mapped to a single caller-facing *Error with a stable ErrorCode.
//
// Provider adapters live under internal/platform and never parse JSON
// themselves; all repair and shape checking happens in Normalize.
package generation
