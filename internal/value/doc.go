// Package value provides the plain-data value model used to serialize
// observable state for the remote store.
//
// Every state container snapshot is a value.Object. The model is a sealed
// set of types mirroring JSON: Null, String, Int, Float, Bool, Array and
// Object. Integers and floats are kept apart so that a snapshot decoded
// from the wire restores into the same Go kinds it was taken from.
//
// Key design constraints:
//   - Object keys are emitted in RFC 8785 order (UTF-16 code units)
//   - Strings are NFC normalized at the canonical serialization boundary
//   - Floats always carry a fraction or exponent on the wire, so 6563.0
//     decodes back as a Float and never as an Int
//   - NaN and infinities cannot be serialized
//
// This package imports nothing internal.
package value
