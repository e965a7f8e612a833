// Package memory holds the conversation history a run starts from and appends
// to. The run entry point accepts either a fresh prompt, which is appended to
// a copy of the provided memory, or a pre-populated memory that is resumed
// as-is.
package memory
