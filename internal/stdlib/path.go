package stdlib

// DefaultPath is where cmd/backend looks for the prebuilt stdlib ELF
// blob when --stdlib isn't given: spec.md §5 calls it simply "a known
// on-disk blob", so c57 fixes one conventional location next to where
// the backend runs rather than requiring every invocation to name it.
const DefaultPath = "stdlib.bin"
