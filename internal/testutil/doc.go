// Package testutil contains helpers used across tests to reduce boilerplate
// when constructing plans and asserting on emitted events. They are not
// intended for production usage.
package testutil
