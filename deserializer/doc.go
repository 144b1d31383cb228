// Package deserializer turns serialized Arrow record batches into rows of a
// configured logical row type.
package deserializer
