// Package validation aggregates field level failures into a single error.
package validation
