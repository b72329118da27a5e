// Package model defines the provider agnostic reasoning engine abstraction
// driven by the dispatch loop.
//
// Core goals:
//   - One Generate call per reasoning step, returning text and/or tool calls
//   - Normalize tool call representation (ToolDefinition, core.ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate scripted mocking for tests (MockModel)
//
// Providers (openai, anthropic subpackages) implement Model so agents and
// flows stay decoupled from vendor SDKs.
package model
