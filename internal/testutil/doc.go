// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing transcripts, registries and
// provider scripts. They are not intended for production usage.
package testutil
