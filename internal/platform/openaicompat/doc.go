// Package openaicompat provides a generation.Provider for chat-completions
// endpoints that follow the OpenAI wire format. It serves both Groq and
// OpenAI; only the base URL, key and model list differ.
package openaicompat
