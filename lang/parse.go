package lang

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kavik-labs/plcsim/internal/langlex"
	"github.com/kavik-labs/plcsim/timeunit"
	"github.com/pkg/errors"
)

// ParseFile reads and parses a plcsim source file. On a syntax error the
// returned error is a *ParseError carrying the offending 1-based line.
func ParseFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %q", path)
	}
	defer f.Close()
	return ParseReader(path, f)
}

// ParseReader parses source read from r. name is used only in wrapped I/O
// errors, not in parse errors (which carry a line number instead).
func ParseReader(name string, r io.Reader) (*Program, error) {
	p := &parser{
		prog: &Program{
			SymbolToSignal: make(map[string]int),
			Analog:         make(map[int]bool),
			Constants:      make(map[int]int),
		},
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		raw := sc.Text()
		p.prog.SourceLines = append(p.prog.SourceLines, raw)
		if err := p.parseLine(lineNum, raw); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %q", name)
	}
	p.prog.NumSignals = len(p.prog.SymbolToSignal) + p.syntheticSignals
	p.prog.Diagnostics = unusedSignalWarnings(p.prog)
	return p.prog, nil
}

// unusedSignalWarnings flags declared names that no node ever reads or
// writes: a stray IN/OUT/AIN/AOUT with no wiring is almost always a typo
// rather than intentional, but it is not a syntax error, so parsing still
// succeeds.
func unusedSignalWarnings(prog *Program) []string {
	referenced := make(map[int]bool, prog.NumSignals)
	for _, n := range prog.Nodes {
		for _, s := range n.Inputs {
			referenced[s] = true
		}
		for _, s := range n.Outputs {
			referenced[s] = true
		}
		if n.CVOutput >= 0 {
			referenced[n.CVOutput] = true
		}
	}

	var warnings []string
	for _, list := range [][]string{prog.Inputs, prog.Outputs, prog.AnalogInputs, prog.AnalogOutputs} {
		for _, name := range list {
			id, ok := prog.SymbolToSignal[name]
			if ok && !referenced[id] {
				warnings = append(warnings, "signal "+name+" is declared but never used by any node")
			}
		}
	}
	return warnings
}

type parser struct {
	prog             *Program
	syntheticSignals int
}

func (p *parser) parseLine(lineNum int, raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil
	}

	lead := len(raw) - len(strings.TrimLeft(raw, " \t"))
	body := raw[lead:]

	switch {
	case hasKeyword(body, "IN"):
		return p.parseDecl(lineNum, raw, lead+3, &p.prog.Inputs, false)
	case hasKeyword(body, "OUT"):
		return p.parseDecl(lineNum, raw, lead+4, &p.prog.Outputs, false)
	case hasKeyword(body, "AIN"):
		return p.parseDecl(lineNum, raw, lead+4, &p.prog.AnalogInputs, true)
	case hasKeyword(body, "AOUT"):
		return p.parseDecl(lineNum, raw, lead+5, &p.prog.AnalogOutputs, true)
	}

	firstWord := body
	if i := strings.IndexAny(body, " \t"); i >= 0 {
		firstWord = body[:i]
	}
	_, isKnownKind := KindFromKeyword(firstWord)
	hasArrow := strings.Contains(raw, "->")

	switch {
	case isKnownKind && !hasArrow:
		return parseErr(lineNum, "missing arrow")
	case isKnownKind:
		return p.parseGate(lineNum, raw)
	case hasArrow:
		// Shaped like a gate call but the leading word names no known
		// kind: a typo like "NAND g(a, b) -> y" must halt, not vanish.
		return parseErr(lineNum, "unknown gate kind %q", firstWord)
	default:
		// Not a recognized construct at all; ignore, matching the
		// language's tolerance for stray lines that are neither
		// declarations nor gate calls.
		return nil
	}
}

// hasKeyword reports whether body starts with kw followed by whitespace.
func hasKeyword(body, kw string) bool {
	if !strings.HasPrefix(body, kw) {
		return false
	}
	if len(body) <= len(kw) {
		return false
	}
	c := body[len(kw)]
	return c == ' ' || c == '\t'
}

// getOrCreateSignal returns the signal ID for symbol, allocating a new
// boolean signal if this is the first time it is seen.
func (p *parser) getOrCreateSignal(symbol string) int {
	if id, ok := p.prog.SymbolToSignal[symbol]; ok {
		return id
	}
	id := len(p.prog.SymbolToSignal) + p.syntheticSignals
	p.prog.SymbolToSignal[symbol] = id
	return id
}

// newSyntheticSignal allocates a signal ID that is not registered under any
// public symbol name, used for the outputs of desugared NOT/PS/NS nodes.
func (p *parser) newSyntheticSignal() int {
	id := len(p.prog.SymbolToSignal) + p.syntheticSignals
	p.syntheticSignals++
	return id
}

func (p *parser) getOrCreateConstant(value int) int {
	name := "_const_" + strconv.Itoa(value)
	if id, ok := p.prog.SymbolToSignal[name]; ok {
		return id
	}
	id := p.getOrCreateSignal(name)
	p.prog.Analog[id] = true
	p.prog.Constants[id] = value
	return id
}

func (p *parser) addToken(line, col0, col1 int, symbol string) {
	if strings.HasPrefix(symbol, "_") {
		return
	}
	p.prog.Tokens = append(p.prog.Tokens, TokenSpan{Line: line, ColStart: col0, ColEnd: col1, Symbol: symbol})
}

// parseDecl parses "IN a, b(alias), c" style declaration lines. contentCol
// is the byte offset in raw where the entry list begins.
func (p *parser) parseDecl(lineNum int, raw string, contentCol int, names *[]string, analog bool) error {
	content := raw[contentCol:]
	l := langlex.Lexer(content)

	for {
		tok := l.Lex()
		if tok.Type == langlex.EOF {
			return nil
		}
		if tok.Type != langlex.Ident {
			return parseErr(lineNum, "expected name")
		}
		name := tok.Value.(string)
		nameCol := contentCol + int(tok.Pos)
		alias := ""
		aliasCol := 0

		tok = l.Lex()
		if tok.Type == langlex.LParen {
			tok = l.Lex()
			if tok.Type != langlex.Ident {
				return parseErr(lineNum, "expected alias name after '('")
			}
			alias = tok.Value.(string)
			aliasCol = contentCol + int(tok.Pos)
			tok = l.Lex()
			if tok.Type != langlex.RParen {
				return parseErr(lineNum, "missing ')' after alias")
			}
			tok = l.Lex()
		}

		id := p.getOrCreateSignal(name)
		if analog {
			p.prog.Analog[id] = true
		}
		p.addToken(lineNum, nameCol, nameCol+len(name), name)

		public := name
		if alias != "" {
			p.prog.SymbolToSignal[alias] = id
			p.addToken(lineNum, aliasCol, aliasCol+len(alias), alias)
			public = alias
		}
		*names = append(*names, public)

		switch tok.Type {
		case langlex.EOF:
			return nil
		case langlex.Comma:
			continue
		default:
			return parseErr(lineNum, "expected ',' or end of line")
		}
	}
}

// parseGate parses "KIND name(args) -> outs".
func (p *parser) parseGate(lineNum int, raw string) error {
	arrowIdx := strings.Index(raw, "->")
	before := raw[:arrowIdx]
	after := raw[arrowIdx+2:]

	trimBefore := strings.TrimLeft(before, " \t")
	beforeLead := len(before) - len(trimBefore)

	sp := strings.IndexAny(trimBefore, " \t")
	if sp < 0 {
		return parseErr(lineNum, "missing name after kind")
	}
	kindWord := trimBefore[:sp]
	kind, ok := KindFromKeyword(kindWord)
	if !ok {
		return parseErr(lineNum, "unknown gate kind %q", kindWord)
	}

	rest := strings.TrimLeft(trimBefore[sp+1:], " \t")
	restCol := beforeLead + sp + 1 + (len(trimBefore[sp+1:]) - len(rest))

	parenIdx := strings.Index(rest, "(")
	if parenIdx < 0 {
		return parseErr(lineNum, "missing '(' in gate definition")
	}
	name := strings.TrimRight(rest[:parenIdx], " \t")
	if name == "" {
		return parseErr(lineNum, "missing name after kind")
	}

	argsStart := restCol + parenIdx + 1
	depth := 1
	closeIdx := parenIdx + 1
	for closeIdx < len(rest) && depth > 0 {
		switch rest[closeIdx] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth > 0 {
			closeIdx++
		}
	}
	if depth != 0 {
		return parseErr(lineNum, "missing ')' in gate definition")
	}
	argsRaw := rest[parenIdx+1 : closeIdx]

	node := Node{Kind: kind, Name: name, Line: lineNum, CVOutput: -1}

	inputs, err := p.resolveArgs(lineNum, kind, argsRaw, argsStart, &node)
	if err != nil {
		return err
	}
	node.Inputs = inputs

	outputs, err := p.parseOutputs(lineNum, after, arrowIdx+2)
	if err != nil {
		return err
	}
	if (kind == Ctu || kind == Ctd) && len(outputs) > 1 {
		node.CVOutput = outputs[1]
		outputs = outputs[:1]
		p.prog.Analog[node.CVOutput] = true
	}
	node.Outputs = outputs

	p.prog.Nodes = append(p.prog.Nodes, node)
	return nil
}

// resolveArgs splits a gate's raw argument-list text at top-level commas,
// applies TON/TOF preset-time and CTU/CTD preset-count detection on the
// first argument, folds small integer literals into constant signals for
// comparators, and otherwise resolves each argument via resolveArg.
func (p *parser) resolveArgs(lineNum int, kind Kind, argsRaw string, argsStart int, node *Node) ([]int, error) {
	if strings.TrimSpace(argsRaw) == "" {
		return nil, nil
	}
	spans := splitTopLevel(argsRaw)

	var inputs []int
	for i, sp := range spans {
		raw := argsRaw[sp.start:sp.end]
		col := argsStart + sp.start
		trimmedArg := strings.TrimSpace(raw)
		trimLead := len(raw) - len(strings.TrimLeft(raw, " \t"))
		col += trimLead

		if i == 0 && (kind == Ton || kind == Tof) && looksLikeTimeLiteral(trimmedArg) {
			d := timeunit.ParseOrDefault(trimmedArg)
			node.PresetTime = d.Seconds()
			node.HasPresetTime = true
			continue
		}
		if i == 0 && (kind == Ctu || kind == Ctd) {
			if v, ok := langlex.ParseInt(trimmedArg); ok {
				node.PresetCount = v
				node.HasPresetCount = true
				continue
			}
		}
		if kind == Lt || kind == Gt || kind == Eq {
			if v, ok := langlex.ParseInt(trimmedArg); ok && v >= 0 && v <= 255 {
				inputs = append(inputs, p.getOrCreateConstant(v))
				continue
			}
		}

		sigID, err := p.resolveArg(lineNum, trimmedArg, col)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, sigID)
	}
	return inputs, nil
}

func looksLikeTimeLiteral(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '"' {
		return true
	}
	return s[0] == '.' || (s[0] >= '0' && s[0] <= '9')
}

// resolveArg implements the `arg` grammar rule: a plain name, a literal, or
// an inline NOT(arg)/PS(arg)/NS(arg). It returns the signal ID that should
// be wired as the enclosing gate's input, creating and appending synthetic
// nodes to p.prog.Nodes as needed.
func (p *parser) resolveArg(lineNum int, text string, col int) (int, error) {
	for _, wrap := range []struct {
		prefix string
		kind   Kind
		tag    string
	}{
		{"NOT(", Not, "not"},
		{"PS(", Ps, "ps"},
		{"NS(", Ns, "ns"},
	} {
		if strings.HasPrefix(text, wrap.prefix) {
			if !strings.HasSuffix(text, ")") {
				return 0, parseErr(lineNum, "unmatched inline %s(", strings.TrimSuffix(wrap.prefix, "("))
			}
			inner := text[len(wrap.prefix) : len(text)-1]
			innerTrim := strings.TrimSpace(inner)
			innerLead := len(inner) - len(strings.TrimLeft(inner, " \t"))
			innerCol := col + len(wrap.prefix) + innerLead

			innerSig, err := p.resolveArg(lineNum, innerTrim, innerCol)
			if err != nil {
				return 0, err
			}

			k := len(p.prog.Nodes)
			outSig := p.newSyntheticSignal()
			p.prog.Nodes = append(p.prog.Nodes, Node{
				Kind:     wrap.kind,
				Name:     "_" + wrap.tag + "_" + strconv.Itoa(k),
				Inputs:   []int{innerSig},
				Outputs:  []int{outSig},
				Line:     lineNum,
				CVOutput: -1,
			})
			return outSig, nil
		}
	}

	sigID := p.getOrCreateSignal(text)
	p.addToken(lineNum, col, col+len(text), text)
	return sigID, nil
}

// parseOutputs parses a comma-separated output-name list.
func (p *parser) parseOutputs(lineNum int, after string, afterCol int) ([]int, error) {
	l := langlex.Lexer(after)
	var outs []int
	for {
		tok := l.Lex()
		if tok.Type == langlex.EOF {
			if len(outs) == 0 {
				return nil, parseErr(lineNum, "missing arrow")
			}
			return outs, nil
		}
		if tok.Type != langlex.Ident {
			return nil, parseErr(lineNum, "expected output name")
		}
		name := tok.Value.(string)
		col := afterCol + int(tok.Pos)
		id := p.getOrCreateSignal(name)
		p.addToken(lineNum, col, col+len(name), name)
		outs = append(outs, id)

		tok = l.Lex()
		switch tok.Type {
		case langlex.EOF:
			return outs, nil
		case langlex.Comma:
			continue
		default:
			return nil, parseErr(lineNum, "expected ',' or end of line")
		}
	}
}

type span struct{ start, end int }

// splitTopLevel splits s at commas that are not nested inside parentheses,
// returning the raw (untrimmed) byte ranges between separators.
func splitTopLevel(s string) []span {
	var out []span
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, span{start, i})
				start = i + 1
			}
		}
	}
	out = append(out, span{start, len(s)})
	return out
}
