// Package dist implements the on-disk image format for compiled programs.
// An image is a 4-byte magic header followed by a canonical CBOR body
// holding the top-level script function and, recursively, every nested
// function in its constant pools. Canonical encoding makes images
// deterministic: compiling the same source twice yields identical bytes.
package dist

// Magic identifies an image file.
const Magic = "RLXC"

// FormatVersion is the current image body version.
const FormatVersion = 1

// Constant pool entries carry a kind tag so the decoder knows which
// payload field to read.
const (
	tagNil      uint8 = 0
	tagBool     uint8 = 1
	tagNumber   uint8 = 2
	tagString   uint8 = 3
	tagFunction uint8 = 4
)

// imageBody is the CBOR payload that follows the magic header.
type imageBody struct {
	FormatVersion int            `cbor:"1,keyasint"`
	Script        *imageFunction `cbor:"2,keyasint"`
}

// imageFunction is one serialized function body. The line table is kept
// in full so decoded images report runtime errors with the same source
// positions as a fresh compile.
type imageFunction struct {
	Name      string         `cbor:"1,keyasint,omitempty"`
	Arity     int            `cbor:"2,keyasint,omitempty"`
	Code      []byte         `cbor:"3,keyasint"`
	Lines     []int          `cbor:"4,keyasint"`
	Constants []imageValue   `cbor:"5,keyasint,omitempty"`
	Captures  []imageCapture `cbor:"6,keyasint,omitempty"`
}

// imageValue is a tagged constant pool entry. Only compile-time value
// kinds appear here; closures, natives, classes, and instances exist
// only at run time and are rejected by the encoder.
type imageValue struct {
	Kind     uint8          `cbor:"1,keyasint"`
	Bool     bool           `cbor:"2,keyasint,omitempty"`
	Number   float64        `cbor:"3,keyasint,omitempty"`
	String   string         `cbor:"4,keyasint,omitempty"`
	Function *imageFunction `cbor:"5,keyasint,omitempty"`
}

// imageCapture records how a closure resolves one captured variable.
type imageCapture struct {
	Name    string `cbor:"1,keyasint,omitempty"`
	IsLocal bool   `cbor:"2,keyasint,omitempty"`
	Index   int    `cbor:"3,keyasint,omitempty"`
}
