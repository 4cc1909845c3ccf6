// Package connection resolves database coordinates and credentials from a
// secret store on first use and caches them for the life of the process.
//
// The secret is discovered by a tag lookup that must match exactly one
// secret. Zero or several matches is a configuration error; it is remembered
// and returned to every later caller without another lookup.
package connection
