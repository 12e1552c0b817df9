package arbor

// Version of the library.
const Version = "0.1.0"
