// Package concierge holds the shared domain types of the assistant
// backend: tool calls proposed by the upstream planner model, the caller
// identity attached to every request, execution results, sync actions
// broadcast after committed mutations, and the error taxonomy used across
// the pipeline.
//
// The repository is organized around the tool-call execution pipeline:
//  1. assistant: HTTP surface (streaming, fallback, confirm/cancel, sync)
//  2. tools: dispatcher, preview generator and per-tool handlers
//  3. store: sqlite-backed entities plus the retrying transaction wrapper
//  4. pending: time-boxed store for calls awaiting user confirmation
//  5. broadcast: pub/sub hub and durable sync-action log
//  6. client: streaming transport state machine with fallback
package concierge
