// Package record defines the trace records a runner emits for every dispatch
// and the canonical encoding used to store and identify them.
//
// Each run produces one Invocation (written before the middleware phase) and
// one Completion (written when the run returns). Inputs and results are
// captured as canonical JSON:
//
//   - Object keys sorted by UTF-16 code units
//   - No HTML escaping
//   - Strings NFC normalized
//   - Numbers kept in their original decimal text
//
// Record IDs are content-addressed: SHA-256 over a domain prefix, a null
// separator and the canonical JSON of the identifying fields. The same run in
// the same flow at the same sequence number always yields the same ID, which
// keeps golden traces stable.
package record
