package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/16dprice/rlox/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Compiler: single-pass Pratt parser emitting bytecode
// ---------------------------------------------------------------------------

const (
	maxLocals     = 256
	maxCaptures   = 256
	maxParameters = 255
	maxConstants  = 65536
)

// Error is one compile-time diagnostic with its source line.
type Error struct {
	Line    int
	Where   string // offending token text, "end" at end of input, empty for lexical errors
	Message string
}

func (e Error) Error() string {
	switch e.Where {
	case "":
		return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
	case "end":
		return fmt.Sprintf("[line %d] Error at end: %s", e.Line, e.Message)
	default:
		return fmt.Sprintf("[line %d] Error at '%s': %s", e.Line, e.Where, e.Message)
	}
}

// ErrorList is every diagnostic collected during one compile.
type ErrorList []Error

func (el ErrorList) Error() string {
	msgs := make([]string, len(el))
	for i, e := range el {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// precedence levels, lowest to highest.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

// parseRule binds a token type to its prefix and infix behavior.
type parseRule struct {
	prefix func(*Compiler, bool)
	infix  func(*Compiler, bool)
	prec   precedence
}

// rules is filled in init to break the reference cycle with the rule
// methods.
var rules map[TokenType]parseRule

func init() {
	rules = map[TokenType]parseRule{
		TokenLParen:       {(*Compiler).grouping, (*Compiler).call, precCall},
		TokenDot:          {nil, (*Compiler).dot, precCall},
		TokenMinus:        {(*Compiler).unary, (*Compiler).binary, precTerm},
		TokenPlus:         {nil, (*Compiler).binary, precTerm},
		TokenSlash:        {nil, (*Compiler).binary, precFactor},
		TokenStar:         {nil, (*Compiler).binary, precFactor},
		TokenBang:         {(*Compiler).unary, nil, precNone},
		TokenBangEqual:    {nil, (*Compiler).binary, precEquality},
		TokenEqualEqual:   {nil, (*Compiler).binary, precEquality},
		TokenGreater:      {nil, (*Compiler).binary, precComparison},
		TokenGreaterEqual: {nil, (*Compiler).binary, precComparison},
		TokenLess:         {nil, (*Compiler).binary, precComparison},
		TokenLessEqual:    {nil, (*Compiler).binary, precComparison},
		TokenIdentifier:   {(*Compiler).variable, nil, precNone},
		TokenString:       {(*Compiler).stringLiteral, nil, precNone},
		TokenNumber:       {(*Compiler).number, nil, precNone},
		TokenAnd:          {nil, (*Compiler).logicalAnd, precAnd},
		TokenOr:           {nil, (*Compiler).logicalOr, precOr},
		TokenFalse:        {(*Compiler).literal, nil, precNone},
		TokenTrue:         {(*Compiler).literal, nil, precNone},
		TokenNil:          {(*Compiler).literal, nil, precNone},
		TokenThis:         {(*Compiler).thisExpr, nil, precNone},
		TokenSuper:        {(*Compiler).superExpr, nil, precNone},
	}
}

// functionType distinguishes top-level code from function and method
// bodies.
type functionType int

const (
	typeScript functionType = iota
	typeFunction
	typeMethod
)

// local is a compile-time record of a declared local variable. Its index
// in the locals slice is its frame slot.
type local struct {
	name       string
	depth      int // scope depth, -1 until the initializer completes
	isCaptured bool
}

// funcCompiler holds the per-function compilation state. Nested function
// declarations push a new funcCompiler linked through enclosing.
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *bytecode.Function
	ftype      functionType
	locals     []local
	scopeDepth int
}

func newFuncCompiler(enclosing *funcCompiler, ftype functionType, name string) *funcCompiler {
	return &funcCompiler{
		enclosing: enclosing,
		function:  &bytecode.Function{Name: name, Chunk: bytecode.NewChunk()},
		ftype:     ftype,
		locals:    make([]local, 0, 8),
	}
}

// Compiler drives the scanner and emits bytecode for one compilation.
type Compiler struct {
	scanner   *Scanner
	fc        *funcCompiler
	current   Token
	previous  Token
	errors    []Error
	panicMode bool
}

// Compile translates source text into a top-level function ready for
// execution. On failure it returns the collected diagnostics as an
// ErrorList.
func Compile(source string) (*bytecode.Function, error) {
	c := &Compiler{
		scanner: NewScanner(source),
		fc:      newFuncCompiler(nil, typeScript, ""),
	}

	c.advance()
	for !c.match(TokenEOF) {
		c.declaration()
	}
	fn := c.endFunction()

	if len(c.errors) > 0 {
		return nil, ErrorList(c.errors)
	}
	return fn, nil
}

// ---------------------------------------------------------------------------
// Token handling and error reporting
// ---------------------------------------------------------------------------

// advance moves to the next token, reporting any error tokens along the
// way.
func (c *Compiler) advance() {
	c.previous = c.current

	for {
		c.current = c.scanner.NextToken()
		if c.current.Type != TokenError {
			break
		}
		c.errorAtCurrent(c.current.Literal)
	}
}

// consume advances past a token of the expected type or records an
// error.
func (c *Compiler) consume(t TokenType, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) check(t TokenType) bool {
	return c.current.Type == t
}

func (c *Compiler) match(t TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

// errorAt records a diagnostic for a token. While in panic mode further
// errors are suppressed until the parser resynchronizes.
func (c *Compiler) errorAt(tok Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true

	where := tok.Literal
	if tok.Type == TokenEOF {
		where = "end"
	} else if tok.Type == TokenError {
		where = ""
	}

	c.errors = append(c.errors, Error{
		Line:    tok.Pos.Line,
		Where:   where,
		Message: message,
	})
}

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.current, message)
}

// synchronize discards tokens until a statement boundary so one mistake
// does not cascade into a wall of errors.
func (c *Compiler) synchronize() {
	c.panicMode = false

	for c.current.Type != TokenEOF {
		if c.previous.Type == TokenSemicolon {
			return
		}
		switch c.current.Type {
		case TokenClass, TokenFun, TokenVar, TokenFor,
			TokenIf, TokenWhile, TokenPrint, TokenReturn:
			return
		}
		c.advance()
	}
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) currentChunk() *bytecode.Chunk {
	return c.fc.function.Chunk
}

func (c *Compiler) emit(op bytecode.Opcode) {
	c.currentChunk().Emit(op, c.previous.Pos.Line)
}

func (c *Compiler) emitWithOperand(op bytecode.Opcode, operands ...byte) {
	c.currentChunk().EmitWithOperand(op, c.previous.Pos.Line, operands...)
}

// makeConstant adds a value to the constant pool and returns its index.
func (c *Compiler) makeConstant(v bytecode.Value) int {
	idx := c.currentChunk().AddConstant(v)
	if idx >= maxConstants {
		c.error("too many constants in one chunk")
		return 0
	}
	return idx
}

func (c *Compiler) emitConstant(v bytecode.Value) {
	idx := c.makeConstant(v)
	c.emitWithOperand(bytecode.OpConstant, byte(idx>>8), byte(idx))
}

// emitConstantOp emits an instruction whose operand is a constant-pool
// index.
func (c *Compiler) emitConstantOp(op bytecode.Opcode, idx int) {
	c.emitWithOperand(op, byte(idx>>8), byte(idx))
}

func (c *Compiler) emitJump(op bytecode.Opcode) int {
	return c.currentChunk().EmitJump(op, c.previous.Pos.Line)
}

func (c *Compiler) patchJump(placeholder int) {
	if err := c.currentChunk().PatchJump(placeholder); err != nil {
		c.error("too much code to jump over")
	}
}

func (c *Compiler) emitLoop(loopStart int) {
	if err := c.currentChunk().EmitLoop(loopStart, c.previous.Pos.Line); err != nil {
		c.error("loop body too large")
	}
}

// emitReturn emits the implicit nil return at the end of a body.
func (c *Compiler) emitReturn() {
	c.emit(bytecode.OpNil)
	c.emit(bytecode.OpReturn)
}

// endFunction seals the current function and pops back to the enclosing
// compilation, returning the finished function.
func (c *Compiler) endFunction() *bytecode.Function {
	c.emitReturn()
	fn := c.fc.function
	c.fc = c.fc.enclosing
	return fn
}

// ---------------------------------------------------------------------------
// Scope and variable resolution
// ---------------------------------------------------------------------------

func (c *Compiler) beginScope() {
	c.fc.scopeDepth++
}

// endScope pops every local declared in the scope being left. Captured
// locals are closed instead of plainly popped so live closures keep
// their values.
func (c *Compiler) endScope() {
	c.fc.scopeDepth--

	for len(c.fc.locals) > 0 {
		last := c.fc.locals[len(c.fc.locals)-1]
		if last.depth <= c.fc.scopeDepth {
			break
		}
		if last.isCaptured {
			c.emit(bytecode.OpCloseUpvalue)
		} else {
			c.emit(bytecode.OpPop)
		}
		c.fc.locals = c.fc.locals[:len(c.fc.locals)-1]
	}
}

// declareVariable records a new local in the current scope. Globals are
// late-bound by name and need no record.
func (c *Compiler) declareVariable() {
	if c.fc.scopeDepth == 0 {
		return
	}

	name := c.previous.Literal
	for i := len(c.fc.locals) - 1; i >= 0; i-- {
		l := c.fc.locals[i]
		if l.depth != -1 && l.depth < c.fc.scopeDepth {
			break
		}
		if l.name == name {
			c.error("already a variable with this name in this scope")
		}
	}

	c.addLocal(name)
}

func (c *Compiler) addLocal(name string) {
	if len(c.fc.locals) >= maxLocals {
		c.error("too many local variables in function")
		return
	}
	c.fc.locals = append(c.fc.locals, local{name: name, depth: -1})
}

// parseVariable consumes a variable name. For globals it returns the
// name's constant-pool index; locals return 0 and live in slots.
func (c *Compiler) parseVariable(errorMessage string) int {
	c.consume(TokenIdentifier, errorMessage)

	c.declareVariable()
	if c.fc.scopeDepth > 0 {
		return 0
	}

	return c.identifierConstant(c.previous)
}

func (c *Compiler) identifierConstant(tok Token) int {
	return c.makeConstant(bytecode.FromString(tok.Literal))
}

// markInitialized completes a local's declaration, making it resolvable.
func (c *Compiler) markInitialized() {
	if c.fc.scopeDepth == 0 {
		return
	}
	c.fc.locals[len(c.fc.locals)-1].depth = c.fc.scopeDepth
}

func (c *Compiler) defineVariable(globalIdx int) {
	if c.fc.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitConstantOp(bytecode.OpDefineGlobal, globalIdx)
}

// resolveLocal finds a name in a function's locals, innermost first.
// Returns the frame slot or -1.
func (c *Compiler) resolveLocal(fc *funcCompiler, name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			if fc.locals[i].depth == -1 {
				c.error("cannot read local variable in its own initializer")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue finds a name in enclosing function scopes, recording a
// capture descriptor at each level crossed. Returns the capture index or
// -1 when the name must be a global.
func (c *Compiler) resolveUpvalue(fc *funcCompiler, name string) int {
	if fc.enclosing == nil {
		return -1
	}

	if slot := c.resolveLocal(fc.enclosing, name); slot != -1 {
		fc.enclosing.locals[slot].isCaptured = true
		return c.addCapture(fc, name, true, slot)
	}

	if idx := c.resolveUpvalue(fc.enclosing, name); idx != -1 {
		return c.addCapture(fc, name, false, idx)
	}

	return -1
}

// addCapture appends a capture descriptor to the function, reusing an
// existing descriptor for the same variable.
func (c *Compiler) addCapture(fc *funcCompiler, name string, isLocal bool, index int) int {
	for i, existing := range fc.function.Captures {
		if existing.Index == index && existing.IsLocal == isLocal {
			return i
		}
	}

	if len(fc.function.Captures) >= maxCaptures {
		c.error("too many captured variables in function")
		return 0
	}

	fc.function.Captures = append(fc.function.Captures, bytecode.Capture{
		Name:    name,
		IsLocal: isLocal,
		Index:   index,
	})
	return len(fc.function.Captures) - 1
}

// namedVariable compiles a read of, or assignment to, a variable
// reference: local slot, capture, or global by name.
func (c *Compiler) namedVariable(tok Token, canAssign bool) {
	var getOp, setOp bytecode.Opcode
	var arg int
	wide := false

	if slot := c.resolveLocal(c.fc, tok.Literal); slot != -1 {
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
		arg = slot
	} else if idx := c.resolveUpvalue(c.fc, tok.Literal); idx != -1 {
		getOp, setOp = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
		arg = idx
	} else {
		getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
		arg = c.identifierConstant(tok)
		wide = true
	}

	op := getOp
	if canAssign && c.match(TokenEqual) {
		c.expression()
		op = setOp
	}

	if wide {
		c.emitConstantOp(op, arg)
	} else {
		c.emitWithOperand(op, byte(arg))
	}
}

// ---------------------------------------------------------------------------
// Expression parsing
// ---------------------------------------------------------------------------

// parsePrecedence parses expressions at or above the given precedence:
// one prefix term, then every infix operator that binds at least as
// tightly.
func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()

	rule := rules[c.previous.Type]
	if rule.prefix == nil {
		c.error("expect expression")
		return
	}

	canAssign := prec <= precAssignment
	rule.prefix(c, canAssign)

	for prec <= rules[c.current.Type].prec {
		c.advance()
		rules[c.previous.Type].infix(c, canAssign)
	}

	if canAssign && c.match(TokenEqual) {
		c.error("invalid assignment target")
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(TokenRParen, "expect ')' after expression")
}

func (c *Compiler) unary(canAssign bool) {
	op := c.previous.Type

	c.parsePrecedence(precUnary)

	switch op {
	case TokenMinus:
		c.emit(bytecode.OpNegate)
	case TokenBang:
		c.emit(bytecode.OpNot)
	}
}

func (c *Compiler) binary(canAssign bool) {
	op := c.previous.Type
	rule := rules[op]

	// Left-associative: parse the right operand one level tighter
	c.parsePrecedence(rule.prec + 1)

	switch op {
	case TokenPlus:
		c.emit(bytecode.OpAdd)
	case TokenMinus:
		c.emit(bytecode.OpSubtract)
	case TokenStar:
		c.emit(bytecode.OpMultiply)
	case TokenSlash:
		c.emit(bytecode.OpDivide)
	case TokenEqualEqual:
		c.emit(bytecode.OpEqual)
	case TokenBangEqual:
		c.emit(bytecode.OpEqual)
		c.emit(bytecode.OpNot)
	case TokenGreater:
		c.emit(bytecode.OpGreater)
	case TokenGreaterEqual:
		c.emit(bytecode.OpLess)
		c.emit(bytecode.OpNot)
	case TokenLess:
		c.emit(bytecode.OpLess)
	case TokenLessEqual:
		c.emit(bytecode.OpGreater)
		c.emit(bytecode.OpNot)
	}
}

func (c *Compiler) number(canAssign bool) {
	v, err := strconv.ParseFloat(c.previous.Literal, 64)
	if err != nil {
		c.error("invalid number literal")
		return
	}
	c.emitConstant(bytecode.FromNumber(v))
}

func (c *Compiler) stringLiteral(canAssign bool) {
	c.emitConstant(bytecode.FromString(c.previous.Literal))
}

func (c *Compiler) literal(canAssign bool) {
	switch c.previous.Type {
	case TokenFalse:
		c.emit(bytecode.OpFalse)
	case TokenTrue:
		c.emit(bytecode.OpTrue)
	case TokenNil:
		c.emit(bytecode.OpNil)
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

// thisExpr and superExpr are accepted inside method bodies so class
// bodies parse, but methods are never installed, so they compile to nil.
func (c *Compiler) thisExpr(canAssign bool) {
	if !c.inMethod() {
		c.error("cannot use 'this' outside of a class")
		return
	}
	c.emit(bytecode.OpNil)
}

func (c *Compiler) superExpr(canAssign bool) {
	if !c.inMethod() {
		c.error("cannot use 'super' outside of a class")
		return
	}
	c.consume(TokenDot, "expect '.' after 'super'")
	c.consume(TokenIdentifier, "expect superclass method name")
	c.emit(bytecode.OpNil)
}

func (c *Compiler) inMethod() bool {
	for fc := c.fc; fc != nil; fc = fc.enclosing {
		if fc.ftype == typeMethod {
			return true
		}
	}
	return false
}

// logicalAnd short-circuits: if the left operand is falsy it stays as
// the result and the right operand is skipped.
func (c *Compiler) logicalAnd(canAssign bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)

	c.emit(bytecode.OpPop)
	c.parsePrecedence(precAnd)

	c.patchJump(endJump)
}

// logicalOr short-circuits: a truthy left operand skips the right one.
func (c *Compiler) logicalOr(canAssign bool) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)

	c.patchJump(elseJump)
	c.emit(bytecode.OpPop)

	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) call(canAssign bool) {
	argc := c.argumentList()
	c.emitWithOperand(bytecode.OpCall, byte(argc))
}

func (c *Compiler) argumentList() int {
	argc := 0
	if !c.check(TokenRParen) {
		for {
			c.expression()
			if argc >= maxParameters {
				c.error(fmt.Sprintf("cannot have more than %d arguments", maxParameters))
			}
			argc++
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRParen, "expect ')' after arguments")
	return argc
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(TokenIdentifier, "expect property name after '.'")
	nameIdx := c.identifierConstant(c.previous)

	if canAssign && c.match(TokenEqual) {
		c.expression()
		c.emitConstantOp(bytecode.OpSetProperty, nameIdx)
	} else {
		c.emitConstantOp(bytecode.OpGetProperty, nameIdx)
	}
}

// ---------------------------------------------------------------------------
// Declarations and statements
// ---------------------------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(TokenClass):
		c.classDeclaration()
	case c.match(TokenFun):
		c.funDeclaration()
	case c.match(TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	globalIdx := c.parseVariable("expect variable name")

	if c.match(TokenEqual) {
		c.expression()
	} else {
		c.emit(bytecode.OpNil)
	}
	c.consume(TokenSemicolon, "expect ';' after variable declaration")

	c.defineVariable(globalIdx)
}

func (c *Compiler) funDeclaration() {
	globalIdx := c.parseVariable("expect function name")
	name := c.previous.Literal
	// The function may refer to itself recursively
	c.markInitialized()

	fn := c.functionBody(typeFunction, name)
	c.emitConstantOp(bytecode.OpClosure, c.makeConstant(bytecode.FromObj(fn)))

	c.defineVariable(globalIdx)
}

// functionBody compiles a parameter list and braced body into a new
// function. The caller decides what to do with it: declarations wrap it
// in a closure, methods discard it.
func (c *Compiler) functionBody(ftype functionType, name string) *bytecode.Function {
	c.fc = newFuncCompiler(c.fc, ftype, name)
	c.beginScope()

	c.consume(TokenLParen, "expect '(' after function name")
	if !c.check(TokenRParen) {
		for {
			c.fc.function.Arity++
			if c.fc.function.Arity > maxParameters {
				c.errorAtCurrent(fmt.Sprintf("cannot have more than %d parameters", maxParameters))
			}
			idx := c.parseVariable("expect parameter name")
			c.defineVariable(idx)
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRParen, "expect ')' after parameters")

	c.consume(TokenLBrace, "expect '{' before function body")
	c.block()

	// No endScope: returning discards the whole frame
	return c.endFunction()
}

func (c *Compiler) classDeclaration() {
	c.consume(TokenIdentifier, "expect class name")
	nameTok := c.previous
	nameIdx := c.identifierConstant(nameTok)
	c.declareVariable()

	c.emitConstantOp(bytecode.OpClass, nameIdx)
	c.defineVariable(nameIdx)

	// Method bodies are parsed so class bodies are accepted, but no
	// method table exists and the compiled bodies are discarded.
	c.consume(TokenLBrace, "expect '{' before class body")
	for !c.check(TokenRBrace) && !c.check(TokenEOF) {
		c.method()
	}
	c.consume(TokenRBrace, "expect '}' after class body")
}

func (c *Compiler) method() {
	c.consume(TokenIdentifier, "expect method name")
	name := c.previous.Literal
	c.functionBody(typeMethod, name)
}

func (c *Compiler) statement() {
	switch {
	case c.match(TokenPrint):
		c.printStatement()
	case c.match(TokenIf):
		c.ifStatement()
	case c.match(TokenReturn):
		c.returnStatement()
	case c.match(TokenWhile):
		c.whileStatement()
	case c.match(TokenFor):
		c.forStatement()
	case c.match(TokenLBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(TokenRBrace) && !c.check(TokenEOF) {
		c.declaration()
	}
	c.consume(TokenRBrace, "expect '}' after block")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(TokenSemicolon, "expect ';' after value")
	c.emit(bytecode.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(TokenSemicolon, "expect ';' after expression")
	c.emit(bytecode.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(TokenLParen, "expect '(' after 'if'")
	c.expression()
	c.consume(TokenRParen, "expect ')' after condition")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop)
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emit(bytecode.OpPop)

	if c.match(TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.currentChunk().CurrentOffset()

	c.consume(TokenLParen, "expect '(' after 'while'")
	c.expression()
	c.consume(TokenRParen, "expect ')' after condition")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emit(bytecode.OpPop)
}

// forStatement desugars to a while loop: the initializer runs once in
// its own scope, and the increment is appended after the body.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(TokenLParen, "expect '(' after 'for'")

	// Initializer clause
	switch {
	case c.match(TokenSemicolon):
		// none
	case c.match(TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.currentChunk().CurrentOffset()

	// Condition clause
	exitJump := -1
	if !c.match(TokenSemicolon) {
		c.expression()
		c.consume(TokenSemicolon, "expect ';' after loop condition")

		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emit(bytecode.OpPop)
	}

	// Increment clause runs after the body, so jump over it now and
	// loop back to it from the body's end
	if !c.match(TokenRParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrementStart := c.currentChunk().CurrentOffset()

		c.expression()
		c.emit(bytecode.OpPop)
		c.consume(TokenRParen, "expect ')' after for clauses")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emit(bytecode.OpPop)
	}

	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.fc.ftype == typeScript {
		c.error("cannot return from top-level code")
	}

	if c.match(TokenSemicolon) {
		c.emitReturn()
		return
	}

	c.expression()
	c.consume(TokenSemicolon, "expect ';' after return value")
	c.emit(bytecode.OpReturn)
}
