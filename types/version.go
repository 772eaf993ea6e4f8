package types

// Version is the canonical pydust version.
const Version = "0.7.0"

// LimitedAPIHexVersion is the interpreter version token passed to every
// limited API build (Py_LIMITED_API for CPython 3.11).
const LimitedAPIHexVersion = "0x030B0000"
