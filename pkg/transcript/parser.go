package transcript

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Markers recognised by the grammar. Leading whitespace before any marker is
// insignificant.
const (
	markerCompiling  = "Compiling"
	markerFinished   = "Finished"
	markerRunning    = "Running"
	markerDocTests   = "Doc-tests"
	markerCount      = "running"
	markerTest       = "test"
	markerFailures   = "failures:"
	markerBlock      = "----"
	markerBlockKind  = "stdout"
	markerNote       = "note:"
	markerSummary    = "test result:"
	resultDelimiter  = " ..."
	statusOK         = "ok"
	statusFailed     = "FAILED"
	statusIgnored    = "ignored"
	summaryFiltered  = "filtered out"
	summaryElapsed   = "finished in"
	snippetMaxLength = 40
)

// ParseError reports where the transcript stopped matching the grammar.
type ParseError struct {
	Offset   int    // byte offset into the input
	Line     int    // 1-based line number
	Expected string // production that was expected
	Found    string // short excerpt of what was there instead
}

func (e *ParseError) Error() string {
	found := e.Found
	if found == "" {
		found = "end of input"
	} else {
		found = strconv.Quote(found)
	}
	return fmt.Sprintf("transcript: line %d (offset %d): expected %s, found %s", e.Line, e.Offset, e.Expected, found)
}

// Option configures parsing.
type Option func(*parser)

// AllowTrailer accepts arbitrary non-suite lines after the last suite
// (for example cargo's "error: test failed" epilogue). By default only
// whitespace may follow the last summary line.
func AllowTrailer() Option {
	return func(p *parser) { p.allowTrailer = true }
}

// ParseStream reads a whole transcript from r and parses it.
func ParseStream(r io.Reader, opts ...Option) ([]Suite, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return ParseBytes(data, opts...)
}

// ParseString is a convenience for parsing from a string.
func ParseString(s string, opts ...Option) ([]Suite, error) {
	return ParseBytes([]byte(s), opts...)
}

// ParseBytes parses a complete transcript. On error no partial result is
// returned.
func ParseBytes(data []byte, opts ...Option) ([]Suite, error) {
	p := &parser{src: data, lines: splitLines(data)}
	for _, opt := range opts {
		opt(p)
	}
	suites, err := p.transcript()
	if err != nil {
		return nil, err
	}
	return suites, nil
}

type line struct {
	text   string
	offset int
	eol    bool
}

// splitLines splits on \n, dropping a trailing \r from each line.
func splitLines(data []byte) []line {
	var lines []line
	start := 0
	for i, b := range data {
		if b != '\n' {
			continue
		}
		text := string(data[start:i])
		lines = append(lines, line{text: strings.TrimSuffix(text, "\r"), offset: start, eol: true})
		start = i + 1
	}
	if start < len(data) {
		lines = append(lines, line{text: string(data[start:]), offset: start})
	}
	return lines
}

type parser struct {
	src          []byte
	lines        []line
	pos          int
	allowTrailer bool
}

func (p *parser) peek() (line, bool) {
	if p.pos >= len(p.lines) {
		return line{}, false
	}
	return p.lines[p.pos], true
}

func (p *parser) skipBlank() {
	for p.pos < len(p.lines) && strings.TrimSpace(p.lines[p.pos].text) == "" {
		p.pos++
	}
}

// errAt builds a ParseError for column col of the current line.
func (p *parser) errAt(col int, expected string) *ParseError {
	l, ok := p.peek()
	if !ok {
		return p.errEOF(expected)
	}
	found := strings.TrimSpace(l.text[min(col, len(l.text)):])
	if len(found) > snippetMaxLength {
		found = found[:snippetMaxLength] + "..."
	}
	return &ParseError{Offset: l.offset + col, Line: p.pos + 1, Expected: expected, Found: found}
}

func (p *parser) errEOF(expected string) *ParseError {
	return &ParseError{Offset: len(p.src), Line: len(p.lines) + 1, Expected: expected}
}

// indent returns the length of leading spaces and tabs.
func indent(s string) int {
	return len(s) - len(strings.TrimLeft(s, " \t"))
}

// marker reports whether l starts with tok (after indentation) followed by
// whitespace or the end of the line, and returns the text after tok.
func marker(l line, tok string) (rest string, col int, ok bool) {
	ind := indent(l.text)
	body := l.text[ind:]
	if !strings.HasPrefix(body, tok) {
		return "", 0, false
	}
	after := body[len(tok):]
	if after != "" && after[0] != ' ' && after[0] != '\t' && !strings.HasSuffix(tok, ":") {
		return "", 0, false
	}
	return after, ind + len(tok), true
}

// freeLine consumes a "<marker> <free text>" line that must end in a line
// terminator and returns the free text.
func (p *parser) freeLine(tok, production string) (string, error) {
	l, ok := p.peek()
	if !ok {
		return "", p.errEOF(production)
	}
	rest, _, ok := marker(l, tok)
	if !ok {
		return "", p.errAt(indent(l.text), production)
	}
	if !l.eol {
		return "", p.errEOF("line ending after " + production)
	}
	p.pos++
	return strings.TrimLeft(rest, " \t"), nil
}

func (p *parser) transcript() ([]Suite, error) {
	for {
		p.skipBlank()
		l, ok := p.peek()
		if !ok {
			return nil, p.errEOF(`"Finished" line`)
		}
		if _, _, ok := marker(l, markerCompiling); !ok {
			break
		}
		if _, err := p.freeLine(markerCompiling, `"Compiling" line`); err != nil {
			return nil, err
		}
	}
	p.skipBlank()
	if _, err := p.freeLine(markerFinished, `"Finished" line`); err != nil {
		return nil, err
	}

	var suites []Suite
	for {
		p.skipBlank()
		l, ok := p.peek()
		if !ok {
			break
		}
		if !isSuiteHeader(l) {
			if len(suites) == 0 {
				return nil, p.errAt(indent(l.text), "suite header")
			}
			if p.allowTrailer {
				break
			}
			return nil, p.errAt(indent(l.text), "suite header or end of input")
		}
		s, err := p.suite()
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}
	if len(suites) == 0 {
		return nil, p.errEOF("suite header")
	}
	return suites, nil
}

func isSuiteHeader(l line) bool {
	if _, _, ok := marker(l, markerRunning); ok {
		return true
	}
	_, _, ok := marker(l, markerDocTests)
	return ok
}

func (p *parser) suite() (Suite, error) {
	l, _ := p.peek()
	tok := markerRunning
	if _, _, ok := marker(l, markerDocTests); ok {
		tok = markerDocTests
	}
	name, err := p.freeLine(tok, "suite header")
	if err != nil {
		return Suite{}, err
	}
	p.skipBlank()
	if _, err := p.freeLine(markerCount, `"running N tests" line`); err != nil {
		return Suite{}, err
	}

	tests, err := p.testResults()
	if err != nil {
		return Suite{}, err
	}
	failures, err := p.failureSection()
	if err != nil {
		return Suite{}, err
	}
	s, err := p.summary()
	if err != nil {
		return Suite{}, err
	}
	if len(tests) != s.Passed+s.Failed {
		return Suite{}, p.errAt(0, fmt.Sprintf("summary counting %d passed+failed tests", len(tests)))
	}
	p.pos++
	attachFailures(tests, failures)
	s.Name = name
	s.Tests = tests
	return s, nil
}

// testResults consumes "test <name> ... ok|FAILED" lines. Lines reporting
// "ignored" are consumed without producing a Test.
func (p *parser) testResults() ([]Test, error) {
	tests := []Test{}
	for {
		p.skipBlank()
		l, ok := p.peek()
		if !ok {
			return nil, p.errEOF("test result line or summary")
		}
		if _, _, ok := marker(l, markerSummary); ok {
			return tests, nil
		}
		rest, col, ok := marker(l, markerTest)
		if !ok || rest == "" {
			return tests, nil
		}
		body := strings.TrimLeft(rest, " \t")
		col += len(rest) - len(body)
		idx := strings.Index(body, resultDelimiter)
		if idx < 0 {
			return nil, p.errAt(col, `"`+resultDelimiter+`" after test name`)
		}
		if idx == 0 {
			return nil, p.errAt(col, "test name")
		}
		name := body[:idx]
		col += idx + len(resultDelimiter)
		status := body[idx+len(resultDelimiter):]
		trimmed := strings.TrimLeft(status, " \t")
		col += len(status) - len(trimmed)

		switch {
		case wordAt(trimmed, statusOK):
			tests = append(tests, Test{Name: name, Status: StatePass})
		case wordAt(trimmed, statusFailed):
			tests = append(tests, Test{Name: name, Status: StateFail})
		case strings.HasPrefix(trimmed, statusIgnored):
		default:
			return nil, p.errAt(col, `"ok" or "FAILED"`)
		}
		p.pos++
	}
}

// wordAt reports whether s is exactly tok, optionally followed by whitespace.
func wordAt(s, tok string) bool {
	return strings.HasPrefix(s, tok) && strings.TrimSpace(s[len(tok):]) == ""
}

// failureSection parses the optional "failures:" header and its blocks, then
// skips forward to the summary marker.
func (p *parser) failureSection() ([]Failure, error) {
	p.skipBlank()
	l, ok := p.peek()
	if !ok {
		return nil, p.errEOF("failures section or summary")
	}
	rest, _, ok := marker(l, markerFailures)
	if !ok || strings.TrimSpace(rest) != "" {
		return nil, nil
	}
	p.pos++

	var failures []Failure
	for {
		p.skipBlank()
		l, ok := p.peek()
		if !ok {
			break
		}
		name, ok := blockName(l)
		if !ok {
			break
		}
		p.pos++
		msg, err := p.blockMessage()
		if err != nil {
			return nil, err
		}
		failures = append(failures, Failure{Name: name, Error: msg})
	}
	if len(failures) == 0 {
		return nil, p.errAt(0, `failure block "---- <name> stdout ----"`)
	}

	for {
		l, ok := p.peek()
		if !ok {
			return nil, p.errEOF("summary line")
		}
		if _, _, ok := marker(l, markerSummary); ok {
			return failures, nil
		}
		p.pos++
	}
}

// blockName matches "---- <name> stdout ----".
func blockName(l line) (string, bool) {
	rest, _, ok := marker(l, markerBlock)
	if !ok {
		return "", false
	}
	body := strings.TrimSpace(rest)
	if !strings.HasSuffix(body, markerBlock) {
		return "", false
	}
	body = strings.TrimSpace(strings.TrimSuffix(body, markerBlock))
	if !strings.HasSuffix(body, markerBlockKind) {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimSuffix(body, markerBlockKind))
	if name == "" {
		return "", false
	}
	return name, true
}

// blockMessage collects message lines after a block delimiter. The block ends
// at a blank line or a note line (which may itself be followed by a blank
// line); the start of another block, the secondary listing or the summary
// also close it.
func (p *parser) blockMessage() (string, error) {
	var msg []string
	for {
		l, ok := p.peek()
		if !ok {
			return "", p.errEOF("blank line terminating failure block")
		}
		trimmed := strings.TrimSpace(l.text)
		if trimmed == "" {
			p.pos++
			break
		}
		if _, _, ok := marker(l, markerNote); ok {
			p.pos++
			if next, ok := p.peek(); ok && strings.TrimSpace(next.text) == "" {
				p.pos++
			}
			break
		}
		if _, ok := blockName(l); ok {
			break
		}
		if _, _, ok := marker(l, markerSummary); ok {
			break
		}
		if rest, _, ok := marker(l, markerFailures); ok && strings.TrimSpace(rest) == "" {
			break
		}
		msg = append(msg, l.text)
		p.pos++
	}
	return strings.TrimSpace(strings.Join(msg, "\n")), nil
}

// summary parses "test result: <ok|FAILED>. N passed; N failed; N ignored; N measured".
// The summary line is left unconsumed so the caller can report count
// mismatches against it.
func (p *parser) summary() (Suite, error) {
	p.skipBlank()
	l, ok := p.peek()
	if !ok {
		return Suite{}, p.errEOF("summary line")
	}
	rest, col, ok := marker(l, markerSummary)
	if !ok {
		return Suite{}, p.errAt(indent(l.text), `"test result:" summary`)
	}
	lx := &lexer{s: rest, col: col}

	var s Suite
	lx.ws()
	switch {
	case lx.literal(statusOK):
		s.State = StatePass
	case lx.literal(statusFailed):
		s.State = StateFail
	default:
		return Suite{}, p.errAt(lx.col, `"ok" or "FAILED"`)
	}
	if !lx.literal(".") {
		return Suite{}, p.errAt(lx.col, `"."`)
	}

	fields := []struct {
		dst  *int
		word string
	}{
		{&s.Passed, "passed;"},
		{&s.Failed, "failed;"},
		{&s.Ignored, "ignored;"},
		{&s.Measured, "measured"},
	}
	for _, f := range fields {
		lx.ws()
		n, err := lx.digits()
		if err != "" {
			return Suite{}, p.errAt(lx.col, err)
		}
		*f.dst = n
		lx.ws()
		if !lx.literal(f.word) {
			return Suite{}, p.errAt(lx.col, strconv.Quote(f.word))
		}
	}

	// Newer runners append "; N filtered out; finished in 0.01s".
	lx.ws()
	if lx.literal(";") {
		lx.ws()
		if lx.digitNext() {
			n, err := lx.digits()
			if err != "" {
				return Suite{}, p.errAt(lx.col, err)
			}
			lx.ws()
			if !lx.literal(summaryFiltered) {
				return Suite{}, p.errAt(lx.col, strconv.Quote(summaryFiltered))
			}
			s.FilteredOut = n
			lx.ws()
			if lx.literal(";") {
				lx.ws()
				if err := lx.elapsed(); err != "" {
					return Suite{}, p.errAt(lx.col, err)
				}
			}
		} else if !strings.HasPrefix(lx.s, summaryElapsed) {
			return Suite{}, p.errAt(lx.col, `"N filtered out" or "finished in"`)
		} else if err := lx.elapsed(); err != "" {
			return Suite{}, p.errAt(lx.col, err)
		}
	}
	lx.ws()
	if !lx.done() {
		return Suite{}, p.errAt(lx.col, "end of summary line")
	}

	s.Total = s.Passed + s.Failed + s.Ignored
	return s, nil
}

// lexer walks a single line, tracking the column for error offsets.
type lexer struct {
	s   string
	col int
}

func (x *lexer) ws() {
	n := indent(x.s)
	x.s = x.s[n:]
	x.col += n
}

func (x *lexer) literal(tok string) bool {
	if !strings.HasPrefix(x.s, tok) {
		return false
	}
	x.s = x.s[len(tok):]
	x.col += len(tok)
	return true
}

func (x *lexer) digitNext() bool {
	return x.s != "" && x.s[0] >= '0' && x.s[0] <= '9'
}

// elapsed consumes "finished in <seconds>s".
func (x *lexer) elapsed() string {
	if !x.literal(summaryElapsed) {
		return strconv.Quote(summaryElapsed)
	}
	x.ws()
	if _, err := x.digits(); err != "" {
		return err
	}
	if x.literal(".") {
		if _, err := x.digits(); err != "" {
			return err
		}
	}
	if !x.literal("s") {
		return `"s"`
	}
	return ""
}

// digits consumes a run of ASCII digits. A non-empty second result names
// the expected production on failure.
func (x *lexer) digits() (int, string) {
	n := 0
	for n < len(x.s) && x.s[n] >= '0' && x.s[n] <= '9' {
		n++
	}
	if n == 0 {
		return 0, "digit run"
	}
	v, err := strconv.Atoi(x.s[:n])
	if err != nil {
		return 0, "digit run within integer range"
	}
	x.s = x.s[n:]
	x.col += n
	return v, ""
}

func (x *lexer) done() bool {
	return strings.TrimSpace(x.s) == ""
}
