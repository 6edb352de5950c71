package dist

import (
	"bytes"
	"strings"
	"testing"

	"github.com/16dprice/rlox/compiler"
	"github.com/16dprice/rlox/pkg/bytecode"
	"github.com/16dprice/rlox/vm"
)

func compileSource(t *testing.T, source string) *bytecode.Function {
	t.Helper()
	fn, err := compiler.Compile(source)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return fn
}

func TestImage_CBORRoundTrip(t *testing.T) {
	source := `
fun greet(name) {
  return "hello " + name;
}
print greet("world");
`
	fn := compileSource(t, source)

	data, err := MarshalImage(fn)
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}
	if !bytes.HasPrefix(data, []byte(Magic)) {
		t.Errorf("image does not start with %q", Magic)
	}

	got, err := UnmarshalImage(data)
	if err != nil {
		t.Fatalf("UnmarshalImage: %v", err)
	}

	if got.Name != fn.Name {
		t.Errorf("Name: got %q, want %q", got.Name, fn.Name)
	}
	if got.Arity != fn.Arity {
		t.Errorf("Arity: got %d, want %d", got.Arity, fn.Arity)
	}
	if !bytes.Equal(got.Chunk.Code, fn.Chunk.Code) {
		t.Error("Code mismatch")
	}
	if len(got.Chunk.Lines) != len(fn.Chunk.Lines) {
		t.Fatalf("Lines: got %d entries, want %d", len(got.Chunk.Lines), len(fn.Chunk.Lines))
	}
	for i := range fn.Chunk.Lines {
		if got.Chunk.Lines[i] != fn.Chunk.Lines[i] {
			t.Fatalf("Lines[%d]: got %d, want %d", i, got.Chunk.Lines[i], fn.Chunk.Lines[i])
		}
	}
	if got.Chunk.ConstantCount() != fn.Chunk.ConstantCount() {
		t.Errorf("ConstantCount: got %d, want %d",
			got.Chunk.ConstantCount(), fn.Chunk.ConstantCount())
	}
}

func TestImage_PreservesDisassembly(t *testing.T) {
	source := `
fun makeCounter() {
  var n = 0;
  fun counter() {
    n = n + 1;
    return n;
  }
  return counter;
}
var c = makeCounter();
print c();
`
	fn := compileSource(t, source)

	data, err := MarshalImage(fn)
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}
	got, err := UnmarshalImage(data)
	if err != nil {
		t.Fatalf("UnmarshalImage: %v", err)
	}

	want := bytecode.DisassembleFunction(fn)
	have := bytecode.DisassembleFunction(got)
	if have != want {
		t.Errorf("disassembly changed across round trip:\n--- original ---\n%s\n--- decoded ---\n%s", want, have)
	}
	if !strings.Contains(have, "<fn counter>") {
		t.Error("decoded image lost the nested function")
	}
}

func TestImage_DecodedScriptRuns(t *testing.T) {
	source := `
fun fib(n) {
  if (n < 2) return n;
  return fib(n - 1) + fib(n - 2);
}
print fib(10);
`
	fn := compileSource(t, source)

	data, err := MarshalImage(fn)
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}
	got, err := UnmarshalImage(data)
	if err != nil {
		t.Fatalf("UnmarshalImage: %v", err)
	}

	var out bytes.Buffer
	machine := vm.New(&out)
	if err := machine.Interpret(got); err != nil {
		t.Fatalf("decoded image failed to run: %v", err)
	}
	if out.String() != "55\n" {
		t.Errorf("output = %q, want %q", out.String(), "55\n")
	}
}

func TestImage_CapturesSurviveRoundTrip(t *testing.T) {
	source := `
var snap = nil;
{
  var x = 1;
  fun s() { return x; }
  snap = s;
  x = 2;
}
print snap();
`
	fn := compileSource(t, source)

	data, err := MarshalImage(fn)
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}
	got, err := UnmarshalImage(data)
	if err != nil {
		t.Fatalf("UnmarshalImage: %v", err)
	}

	var out bytes.Buffer
	machine := vm.New(&out)
	if err := machine.Interpret(got); err != nil {
		t.Fatalf("decoded image failed to run: %v", err)
	}
	if out.String() != "2\n" {
		t.Errorf("output = %q, want %q", out.String(), "2\n")
	}
}

func TestImage_Deterministic(t *testing.T) {
	source := `
var a = 1;
var b = "two";
fun f(x) { return x; }
print f(a);
`
	fn := compileSource(t, source)

	first, err := MarshalImage(fn)
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}
	second, err := MarshalImage(fn)
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("marshaling the same script twice produced different bytes")
	}

	recompiled := compileSource(t, source)
	third, err := MarshalImage(recompiled)
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}
	if !bytes.Equal(first, third) {
		t.Error("recompiling the same source produced a different image")
	}
}

func TestMarshalImage_NilScript(t *testing.T) {
	if _, err := MarshalImage(nil); err == nil {
		t.Error("MarshalImage should reject a nil script")
	}
}

func TestMarshalImage_RejectsRuntimeConstants(t *testing.T) {
	fn := &bytecode.Function{Name: "bad", Chunk: bytecode.NewChunk()}
	fn.Chunk.Constants = append(fn.Chunk.Constants,
		bytecode.FromObj(&bytecode.Class{Name: "C"}))

	_, err := MarshalImage(fn)
	if err == nil {
		t.Fatal("MarshalImage should reject runtime object constants")
	}
	if !strings.Contains(err.Error(), "cannot serialize") {
		t.Errorf("error = %v, want serialization rejection", err)
	}
}

func TestUnmarshalImage_BadMagic(t *testing.T) {
	if _, err := UnmarshalImage([]byte("JUNKdata")); err == nil {
		t.Error("UnmarshalImage should reject a bad magic header")
	}
	if _, err := UnmarshalImage(nil); err == nil {
		t.Error("UnmarshalImage should reject empty input")
	}
}

func TestUnmarshalImage_TruncatedBody(t *testing.T) {
	fn := compileSource(t, "print 1;")
	data, err := MarshalImage(fn)
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}

	if _, err := UnmarshalImage(data[:len(data)/2]); err == nil {
		t.Error("UnmarshalImage should fail on a truncated body")
	}
}

func TestUnmarshalImage_UnsupportedVersion(t *testing.T) {
	body, err := cborEncMode.Marshal(&imageBody{
		FormatVersion: FormatVersion + 1,
		Script:        &imageFunction{Code: []byte{byte(bytecode.OpReturn)}, Lines: []int{1}},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	data := append([]byte(Magic), body...)
	_, err = UnmarshalImage(data)
	if err == nil {
		t.Fatal("UnmarshalImage should reject a newer format version")
	}
	if !strings.Contains(err.Error(), "unsupported image version") {
		t.Errorf("error = %v, want version rejection", err)
	}
}

func TestUnmarshalImage_LineTableMismatch(t *testing.T) {
	body, err := cborEncMode.Marshal(&imageBody{
		FormatVersion: FormatVersion,
		Script: &imageFunction{
			Code:  []byte{byte(bytecode.OpNil), byte(bytecode.OpReturn)},
			Lines: []int{1},
		},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	data := append([]byte(Magic), body...)
	if _, err := UnmarshalImage(data); err == nil {
		t.Error("UnmarshalImage should reject a short line table")
	}
}

func TestUnmarshalImage_UnknownConstantKind(t *testing.T) {
	body, err := cborEncMode.Marshal(&imageBody{
		FormatVersion: FormatVersion,
		Script: &imageFunction{
			Code:      []byte{byte(bytecode.OpReturn)},
			Lines:     []int{1},
			Constants: []imageValue{{Kind: 99}},
		},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	data := append([]byte(Magic), body...)
	if _, err := UnmarshalImage(data); err == nil {
		t.Error("UnmarshalImage should reject an unknown constant kind")
	}
}

func TestUnmarshalImage_RejectsCorruptCode(t *testing.T) {
	num := func(n float64) imageValue { return imageValue{Kind: tagNumber, Number: n} }
	str := func(s string) imageValue { return imageValue{Kind: tagString, String: s} }

	tests := []struct {
		name   string
		script imageFunction
		want   string
	}{
		{
			name: "constant index out of range",
			script: imageFunction{
				Code:  []byte{byte(bytecode.OpConstant), 0x00, 0x05, byte(bytecode.OpReturn)},
				Lines: []int{1, 1, 1, 1},
			},
			want: "references constant",
		},
		{
			name: "truncated operand",
			script: imageFunction{
				Code:      []byte{byte(bytecode.OpConstant), 0x00},
				Lines:     []int{1, 1},
				Constants: []imageValue{num(1)},
			},
			want: "truncated",
		},
		{
			name: "unknown opcode",
			script: imageFunction{
				Code:  []byte{0xCC, byte(bytecode.OpReturn)},
				Lines: []int{1, 1},
			},
			want: "unknown opcode",
		},
		{
			name: "jump beyond the code",
			script: imageFunction{
				Code:  []byte{byte(bytecode.OpJump), 0x7F, 0xFF, byte(bytecode.OpReturn)},
				Lines: []int{1, 1, 1, 1},
			},
			want: "not on an instruction",
		},
		{
			name: "jump before the code",
			script: imageFunction{
				Code:  []byte{byte(bytecode.OpJump), 0xFF, 0x00, byte(bytecode.OpReturn)},
				Lines: []int{1, 1, 1, 1},
			},
			want: "not on an instruction",
		},
		{
			name: "jump into an operand",
			script: imageFunction{
				Code: []byte{
					byte(bytecode.OpConstant), 0x00, 0x00,
					byte(bytecode.OpJump), 0xFF, 0xFE,
					byte(bytecode.OpReturn),
				},
				Lines:     []int{1, 1, 1, 1, 1, 1, 1},
				Constants: []imageValue{num(1)},
			},
			want: "not on an instruction",
		},
		{
			name: "global name is not a string",
			script: imageFunction{
				Code:      []byte{byte(bytecode.OpGetGlobal), 0x00, 0x00, byte(bytecode.OpReturn)},
				Lines:     []int{1, 1, 1, 1},
				Constants: []imageValue{num(3)},
			},
			want: "non-string constant",
		},
		{
			name: "closure over a non-function",
			script: imageFunction{
				Code:      []byte{byte(bytecode.OpClosure), 0x00, 0x00, byte(bytecode.OpReturn)},
				Lines:     []int{1, 1, 1, 1},
				Constants: []imageValue{str("nope")},
			},
			want: "non-function constant",
		},
		{
			name: "upvalue index without captures",
			script: imageFunction{
				Code:  []byte{byte(bytecode.OpGetUpvalue), 0x00, byte(bytecode.OpReturn)},
				Lines: []int{1, 1, 1},
			},
			want: "references capture",
		},
		{
			name: "script with captures",
			script: imageFunction{
				Code:     []byte{byte(bytecode.OpReturn)},
				Lines:    []int{1},
				Captures: []imageCapture{{Name: "x", IsLocal: true, Index: 0}},
			},
			want: "cannot capture",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := cborEncMode.Marshal(&imageBody{
				FormatVersion: FormatVersion,
				Script:        &tt.script,
			})
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}

			_, err = UnmarshalImage(append([]byte(Magic), body...))
			if err == nil {
				t.Fatal("UnmarshalImage accepted a corrupt image")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestImage_EmptyScript(t *testing.T) {
	fn := compileSource(t, "")

	data, err := MarshalImage(fn)
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}
	got, err := UnmarshalImage(data)
	if err != nil {
		t.Fatalf("UnmarshalImage: %v", err)
	}

	var out bytes.Buffer
	machine := vm.New(&out)
	if err := machine.Interpret(got); err != nil {
		t.Fatalf("empty script image failed to run: %v", err)
	}
	if out.String() != "" {
		t.Errorf("output = %q, want empty", out.String())
	}
}
