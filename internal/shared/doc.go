// Package shared holds helpers used across packages that belong to no single
// domain layer.
//
// testutil provides a capturing slog handler and lake fixtures (silver month
// files with tightening rows) for package tests.
package shared
