// Package repository implements a generic repository over Bun: CRUD, query
// composition, pagination, dynamic filters and cascading soft delete driven by
// the relation registry.
package repository
