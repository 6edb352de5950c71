package dist

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/16dprice/rlox/pkg/bytecode"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode encodes with canonical options for deterministic output.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalImage serializes a compiled script into a self-contained image.
func MarshalImage(script *bytecode.Function) ([]byte, error) {
	if script == nil {
		return nil, fmt.Errorf("dist: nil script")
	}

	fn, err := encodeFunction(script)
	if err != nil {
		return nil, err
	}

	body, err := cborEncMode.Marshal(&imageBody{
		FormatVersion: FormatVersion,
		Script:        fn,
	})
	if err != nil {
		return nil, fmt.Errorf("dist: marshal image: %w", err)
	}

	out := make([]byte, 0, len(Magic)+len(body))
	out = append(out, Magic...)
	return append(out, body...), nil
}

// UnmarshalImage deserializes an image back into a runnable script
// function. The returned function is independent of the input buffer.
func UnmarshalImage(data []byte) (*bytecode.Function, error) {
	if !bytes.HasPrefix(data, []byte(Magic)) {
		return nil, fmt.Errorf("dist: not an image file (bad magic)")
	}

	var body imageBody
	if err := cbor.Unmarshal(data[len(Magic):], &body); err != nil {
		return nil, fmt.Errorf("dist: unmarshal image: %w", err)
	}
	if body.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("dist: unsupported image version %d", body.FormatVersion)
	}
	if body.Script == nil {
		return nil, fmt.Errorf("dist: image has no script")
	}

	script, err := decodeFunction(body.Script)
	if err != nil {
		return nil, err
	}
	if err := validateFunction(script, nil); err != nil {
		return nil, err
	}
	return script, nil
}

func encodeFunction(fn *bytecode.Function) (*imageFunction, error) {
	out := &imageFunction{
		Name:  fn.Name,
		Arity: fn.Arity,
		Code:  fn.Chunk.Code,
		Lines: fn.Chunk.Lines,
	}

	for _, v := range fn.Chunk.Constants {
		ev, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		out.Constants = append(out.Constants, ev)
	}

	for _, c := range fn.Captures {
		out.Captures = append(out.Captures, imageCapture{
			Name:    c.Name,
			IsLocal: c.IsLocal,
			Index:   c.Index,
		})
	}
	return out, nil
}

func encodeValue(v bytecode.Value) (imageValue, error) {
	switch {
	case v.IsNil():
		return imageValue{Kind: tagNil}, nil
	case v.IsBool():
		return imageValue{Kind: tagBool, Bool: v.Bool()}, nil
	case v.IsNumber():
		return imageValue{Kind: tagNumber, Number: v.Number()}, nil
	case v.IsString():
		return imageValue{Kind: tagString, String: v.AsString()}, nil
	case v.IsObject():
		if fn, ok := v.Obj().(*bytecode.Function); ok {
			ef, err := encodeFunction(fn)
			if err != nil {
				return imageValue{}, err
			}
			return imageValue{Kind: tagFunction, Function: ef}, nil
		}
	}
	return imageValue{}, fmt.Errorf("dist: cannot serialize %s constant", v.TypeName())
}

func decodeFunction(in *imageFunction) (*bytecode.Function, error) {
	if len(in.Lines) != len(in.Code) {
		return nil, fmt.Errorf("dist: code and line table lengths differ (%d vs %d)",
			len(in.Code), len(in.Lines))
	}
	if in.Arity < 0 || in.Arity > 255 {
		return nil, fmt.Errorf("dist: invalid arity %d", in.Arity)
	}

	fn := &bytecode.Function{
		Name:  in.Name,
		Arity: in.Arity,
		Chunk: &bytecode.Chunk{
			Code:      append([]byte(nil), in.Code...),
			Lines:     append([]int(nil), in.Lines...),
			Constants: make([]bytecode.Value, 0, len(in.Constants)),
		},
	}

	for _, iv := range in.Constants {
		v, err := decodeValue(iv)
		if err != nil {
			return nil, err
		}
		// Appended directly: AddConstant would re-dedup the pool and
		// shift the indexes baked into the code bytes.
		fn.Chunk.Constants = append(fn.Chunk.Constants, v)
	}

	for _, c := range in.Captures {
		fn.Captures = append(fn.Captures, bytecode.Capture{
			Name:    c.Name,
			IsLocal: c.IsLocal,
			Index:   c.Index,
		})
	}
	return fn, nil
}

func decodeValue(in imageValue) (bytecode.Value, error) {
	switch in.Kind {
	case tagNil:
		return bytecode.Nil, nil
	case tagBool:
		return bytecode.FromBool(in.Bool), nil
	case tagNumber:
		return bytecode.FromNumber(in.Number), nil
	case tagString:
		return bytecode.FromString(in.String), nil
	case tagFunction:
		if in.Function == nil {
			return bytecode.Nil, fmt.Errorf("dist: function constant has no body")
		}
		fn, err := decodeFunction(in.Function)
		if err != nil {
			return bytecode.Nil, err
		}
		return bytecode.FromObj(fn), nil
	default:
		return bytecode.Nil, fmt.Errorf("dist: unknown constant kind %d", in.Kind)
	}
}

// validateFunction re-establishes for decoded code what the compiler
// guarantees for compiled code: operands are complete, constant and
// capture indices are in range, and jumps land on instruction starts.
// Without it a corrupt image would fail inside the dispatch loop.
// parent is nil for the script function.
func validateFunction(fn *bytecode.Function, parent *bytecode.Function) error {
	if parent == nil && len(fn.Captures) > 0 {
		return fmt.Errorf("dist: script function cannot capture variables")
	}
	if len(fn.Captures) > 256 {
		return fmt.Errorf("dist: function %q has too many captures (%d)", fn.Name, len(fn.Captures))
	}
	for i, c := range fn.Captures {
		if c.IsLocal {
			if c.Index < 0 || c.Index > 255 {
				return fmt.Errorf("dist: function %q capture %d has invalid local slot %d", fn.Name, i, c.Index)
			}
		} else if parent == nil || c.Index < 0 || c.Index >= len(parent.Captures) {
			return fmt.Errorf("dist: function %q capture %d references a missing enclosing capture", fn.Name, i)
		}
	}

	code := fn.Chunk.Code
	pool := fn.Chunk.Constants
	starts := make(map[int]bool, len(code)/2)
	type jump struct{ offset, target int }
	var jumps []jump

	for offset := 0; offset < len(code); {
		starts[offset] = true
		op := bytecode.Opcode(code[offset])
		if !op.IsValid() {
			return fmt.Errorf("dist: unknown opcode 0x%02X at offset %d", code[offset], offset)
		}
		next := offset + op.InstructionLen()
		if next > len(code) {
			return fmt.Errorf("dist: truncated %s at offset %d", op, offset)
		}

		switch op {
		case bytecode.OpConstant:
			idx := int(binary.BigEndian.Uint16(code[offset+1:]))
			if idx >= len(pool) {
				return fmt.Errorf("dist: %s at offset %d references constant %d of %d", op, offset, idx, len(pool))
			}

		case bytecode.OpGetGlobal, bytecode.OpDefineGlobal, bytecode.OpSetGlobal,
			bytecode.OpGetProperty, bytecode.OpSetProperty, bytecode.OpClass:
			idx := int(binary.BigEndian.Uint16(code[offset+1:]))
			if idx >= len(pool) {
				return fmt.Errorf("dist: %s at offset %d references constant %d of %d", op, offset, idx, len(pool))
			}
			if !pool[idx].IsString() {
				return fmt.Errorf("dist: %s at offset %d references a non-string constant", op, offset)
			}

		case bytecode.OpClosure:
			idx := int(binary.BigEndian.Uint16(code[offset+1:]))
			if idx >= len(pool) {
				return fmt.Errorf("dist: %s at offset %d references constant %d of %d", op, offset, idx, len(pool))
			}
			if _, ok := asFunction(pool[idx]); !ok {
				return fmt.Errorf("dist: %s at offset %d references a non-function constant", op, offset)
			}

		case bytecode.OpJump, bytecode.OpJumpIfFalse:
			delta := int(int16(binary.BigEndian.Uint16(code[offset+1:])))
			jumps = append(jumps, jump{offset: offset, target: next + delta})

		case bytecode.OpGetUpvalue, bytecode.OpSetUpvalue:
			if idx := int(code[offset+1]); idx >= len(fn.Captures) {
				return fmt.Errorf("dist: %s at offset %d references capture %d of %d", op, offset, idx, len(fn.Captures))
			}
		}
		offset = next
	}

	for _, j := range jumps {
		if !starts[j.target] {
			return fmt.Errorf("dist: jump at offset %d lands at %d, not on an instruction", j.offset, j.target)
		}
	}

	for _, v := range pool {
		if nested, ok := asFunction(v); ok {
			if err := validateFunction(nested, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func asFunction(v bytecode.Value) (*bytecode.Function, bool) {
	if !v.IsObject() {
		return nil, false
	}
	fn, ok := v.Obj().(*bytecode.Function)
	return fn, ok
}
