// Package dynamic compiles data driven filter and sort descriptions into Bun
// query modifiers resolved against a model's table metadata.
package dynamic
