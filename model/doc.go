// Package model defines the provider-agnostic abstraction for language
// models used by the planner.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package so the planner stays decoupled from vendor SDKs.
package model
