// Package shared provides common utilities and test helpers used across the
// codebase. It serves as a central location for functionality that doesn't
// belong to any specific domain or architectural layer.
//
// # Structure
//
// The package currently contains:
//
// - testutil: Testing utilities, including a buffered slog handler for
// asserting on structured log output
//
// # Usage Guidelines
//
// This package should only contain:
//
// 1. Test utilities used by multiple packages
// 2. Generic helper functions with no domain-specific logic
//
// It should NOT contain:
//
// 1. Business logic or domain-specific code
// 2. Circular dependencies with other internal packages
package shared
