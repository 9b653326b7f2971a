// Package compress provides the compression codecs used for MDF 4 data
// blocks.
//
// The MDF 4 standard only permits RFC-1951 DEFLATE inside DZ blocks, so
// the package exposes a single real codec next to a no-op pass-through.
// The Codec interface still exists so the reader can reject files that
// declare an unknown algorithm with a typed error instead of a crash.
package compress
