// Package entity defines the base shape of every record managed by the repository.
package entity
