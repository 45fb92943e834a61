// Package relation declares the relationship graph between models: which edges
// cascade on delete, and how to navigate and load the dependents of a principal.
package relation
