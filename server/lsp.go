// Package server implements the language server spoken by editors over
// stdio. Documents are compiled on every change and compile errors are
// published as diagnostics with source ranges.
package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/16dprice/rlox/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "rlox-lsp"

// LspServer serves editor features for Lox documents. Compilation is pure,
// so every feature works from the document text alone.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new language server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentHover:          s.textDocumentHover,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the language server on stdio. Blocks until the client
// disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "rlox LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DocumentSymbolProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			text := whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, pos)
	if prefix == "" {
		return nil, nil
	}

	return s.complete(text, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	word := extractWord(text, pos)
	if word == "" {
		return nil, nil
	}

	return s.hover(text, word), nil
}

func (s *LspServer) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	uri := params.TextDocument.URI

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	return scanSymbols(text), nil
}

// --- Feature logic ---

// keywordDocs backs hover and completion for the reserved words.
var keywordDocs = map[string]string{
	"and":    "Logical and. The right operand is evaluated only when the left is truthy; the result is the deciding operand.",
	"or":     "Logical or. The right operand is evaluated only when the left is falsy; the result is the deciding operand.",
	"class":  "Declares a class. Calling the class like a function creates an instance.",
	"fun":    "Declares a function. Functions are first-class values and may capture enclosing locals.",
	"var":    "Declares a variable. A variable without an initializer starts as nil.",
	"if":     "Runs the following statement when the condition is truthy.",
	"else":   "Runs when the preceding if condition is falsy.",
	"while":  "Repeats the body while the condition is truthy.",
	"for":    "C-style loop with initializer, condition, and increment clauses.",
	"print":  "Evaluates an expression and writes it to standard output.",
	"return": "Returns from the enclosing function. A bare return yields nil.",
	"nil":    "The absence of a value. nil and false are the only falsy values.",
	"true":   "Boolean truth.",
	"false":  "Boolean falsehood.",
	"this":   "The receiver inside a method body.",
	"super":  "The superclass of the enclosing method's class.",
}

var nativeDocs = map[string]string{
	"clock": "`clock()` returns seconds since the Unix epoch as a number.",
}

func (s *LspServer) complete(text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)

	// Declarations in the document
	for _, sym := range scanSymbols(text) {
		if !strings.HasPrefix(sym.Name, prefix) || seen[sym.Name] {
			continue
		}
		seen[sym.Name] = true
		kind := completionKindFor(sym.Kind)
		detail := symbolNoun(sym.Kind)
		name := sym.Name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &name,
		})
	}

	// Keywords
	for word := range keywordDocs {
		if !strings.HasPrefix(word, prefix) || seen[word] {
			continue
		}
		seen[word] = true
		kind := protocol.CompletionItemKindKeyword
		detail := "keyword"
		wordCopy := word
		items = append(items, protocol.CompletionItem{
			Label:      word,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &wordCopy,
		})
	}

	// Native functions
	for name := range nativeDocs {
		if !strings.HasPrefix(name, prefix) || seen[name] {
			continue
		}
		seen[name] = true
		kind := protocol.CompletionItemKindFunction
		detail := "native function"
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func (s *LspServer) hover(text, word string) *protocol.Hover {
	if doc, ok := keywordDocs[word]; ok {
		return markdownHover(fmt.Sprintf("**%s**\n\n%s", word, doc))
	}
	if doc, ok := nativeDocs[word]; ok {
		return markdownHover(fmt.Sprintf("**%s**\n\n%s", word, doc))
	}

	// Fall back to declarations in the document
	for _, sym := range scanSymbols(text) {
		if sym.Name == word {
			return markdownHover(fmt.Sprintf("**%s**\n\n%s declared at line %d",
				word, symbolNoun(sym.Kind), sym.SelectionRange.Start.Line+1))
		}
	}

	return nil
}

func markdownHover(value string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

// scanSymbols extracts declarations from source text. A declaration keyword
// arms the scanner; the next identifier names the symbol. Any other token
// disarms it, so parameters and expression identifiers are skipped.
func scanSymbols(text string) []protocol.DocumentSymbol {
	var symbols []protocol.DocumentSymbol

	var pending protocol.SymbolKind
	for _, tok := range compiler.Tokenize(text) {
		switch tok.Type {
		case compiler.TokenFun:
			pending = protocol.SymbolKindFunction
		case compiler.TokenClass:
			pending = protocol.SymbolKindClass
		case compiler.TokenVar:
			pending = protocol.SymbolKindVariable
		case compiler.TokenIdentifier:
			if pending != 0 {
				r := tokenRange(tok)
				symbols = append(symbols, protocol.DocumentSymbol{
					Name:           tok.Literal,
					Kind:           pending,
					Range:          r,
					SelectionRange: r,
				})
			}
			pending = 0
		default:
			pending = 0
		}
	}

	return symbols
}

func completionKindFor(kind protocol.SymbolKind) protocol.CompletionItemKind {
	switch kind {
	case protocol.SymbolKindFunction:
		return protocol.CompletionItemKindFunction
	case protocol.SymbolKindClass:
		return protocol.CompletionItemKindClass
	default:
		return protocol.CompletionItemKindVariable
	}
}

func symbolNoun(kind protocol.SymbolKind) string {
	switch kind {
	case protocol.SymbolKindFunction:
		return "function"
	case protocol.SymbolKindClass:
		return "class"
	default:
		return "variable"
	}
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	var diagnostics []protocol.Diagnostic

	if _, err := compiler.Compile(text); err != nil {
		var list compiler.ErrorList
		if errors.As(err, &list) {
			severity := protocol.DiagnosticSeverityError
			source := lspName
			for _, e := range list {
				diagnostics = append(diagnostics, protocol.Diagnostic{
					Range:    diagnosticRange(text, e),
					Severity: &severity,
					Source:   &source,
					Message:  e.Message,
				})
			}
		}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnosticRange maps a compile error back onto the document. The error
// records its line and offending token text; the token's position within
// the line is recovered by searching, which is exact enough for editor
// squiggles.
func diagnosticRange(text string, e compiler.Error) protocol.Range {
	lines := strings.Split(text, "\n")
	idx := e.Line - 1
	if idx < 0 || idx >= len(lines) {
		return protocol.Range{}
	}
	line := lines[idx]
	ln := protocol.UInteger(idx)

	switch e.Where {
	case "":
		// Lexical errors carry no token text; flag the whole line
		return wholeLineRange(ln, line)
	case "end":
		col := protocol.UInteger(len(line))
		return protocol.Range{
			Start: protocol.Position{Line: ln, Character: col},
			End:   protocol.Position{Line: ln, Character: col},
		}
	}

	if col := strings.Index(line, e.Where); col >= 0 {
		return protocol.Range{
			Start: protocol.Position{Line: ln, Character: protocol.UInteger(col)},
			End:   protocol.Position{Line: ln, Character: protocol.UInteger(col + len(e.Where))},
		}
	}
	return wholeLineRange(ln, line)
}

func wholeLineRange(ln protocol.UInteger, line string) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: ln, Character: 0},
		End:   protocol.Position{Line: ln, Character: protocol.UInteger(len(line))},
	}
}

func tokenRange(tok compiler.Token) protocol.Range {
	line := protocol.UInteger(tok.Pos.Line - 1)
	start := protocol.UInteger(tok.Pos.Column - 1)
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: start},
		End:   protocol.Position{Line: line, Character: start + protocol.UInteger(len(tok.Literal))},
	}
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Find start
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	// Find end
	end := col
	for end < len(line) {
		ch := rune(line[end])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			end++
		} else {
			break
		}
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
