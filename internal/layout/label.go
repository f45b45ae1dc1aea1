package layout

import (
	"fmt"
	"strings"

	"callmap/internal/errors"
	"callmap/internal/graph"
	"callmap/internal/paths"
)

// escapeHTML escapes the characters with meaning inside HTML-like labels.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// buildLabel renders a file's table label: a header row carrying the click
// target, one row per top-level symbol, and a terminator row the renderer
// uses for spacing. Container symbols nest as sub-tables.
func buildLabel(file *graph.File, collapsed bool) string {
	var b strings.Builder
	b.WriteString("<TABLE BORDER=\"0\" CELLBORDER=\"1\" CELLSPACING=\"8\" CELLPADDING=\"4\">\n")
	fmt.Fprintf(&b, "<TR><TD WIDTH=\"230\" BORDER=\"0\" CELLPADDING=\"6\" HREF=\"%s;%d\">%s</TD></TR>\n",
		escapeHTML(file.Path), file.ID, escapeHTML(paths.Base(file.Path)))

	if !collapsed {
		for _, sym := range file.Symbols {
			writeSymbolRows(&b, file.ID, sym)
		}
	}

	b.WriteString("<TR><TD CELLSPACING=\"0\" HEIGHT=\"1\" WIDTH=\"1\" FIXEDSIZE=\"TRUE\" STYLE=\"invis\"></TD></TR>\n")
	b.WriteString("</TABLE>")
	return b.String()
}

func writeSymbolRows(b *strings.Builder, fileID int, sym *graph.Symbol) {
	port := fmt.Sprintf("%d_%d", sym.Selection.Start.Line, sym.Selection.Start.Character)
	cellID := fmt.Sprintf("%d:%s", fileID, port)
	title := escapeHTML(sym.Name)

	if len(sym.Children) == 0 {
		fmt.Fprintf(b, "<TR><TD PORT=\"%s\" ID=\"%s\" HREF=\"%d\">%s</TD></TR>\n",
			port, cellID, int(sym.Kind), title)
		return
	}

	// A symbol with children renders as a nested table whose first row is
	// the symbol's own cell; arbitrary nesting depth falls out of recursion.
	b.WriteString("<TR><TD BORDER=\"0\" CELLPADDING=\"0\">\n")
	fmt.Fprintf(b, "<TABLE ID=\"%s\" CELLSPACING=\"8\" CELLPADDING=\"4\" CELLBORDER=\"1\" HREF=\"%d\">\n",
		cellID, int(sym.Kind))
	fmt.Fprintf(b, "<TR><TD PORT=\"%s\" BORDER=\"0\">%s</TD></TR>\n", port, title)
	for _, child := range sym.Children {
		writeSymbolRows(b, fileID, child)
	}
	b.WriteString("</TABLE>\n</TD></TR>\n")
}

// fallbackLabel is the minimal single-row label used when a generated label
// fails validation. One malformed symbol must never abort the whole render.
func fallbackLabel(file *graph.File) string {
	return fmt.Sprintf("<TABLE BORDER=\"0\"><TR><TD>%s</TD></TR></TABLE>",
		escapeHTML(paths.Base(file.Path)))
}

// validateLabel checks a label two ways: a tag-stack balance check over the
// raw markup, then a strict structural parse enforcing TABLE/TR/TD nesting.
func validateLabel(label string) error {
	tokens, err := tokenize(label)
	if err != nil {
		return err
	}
	if err := checkBalance(tokens); err != nil {
		return err
	}
	p := &labelParser{tokens: tokens}
	if err := p.parseTable(); err != nil {
		return err
	}
	if p.pos != len(p.tokens) {
		return errors.New(errors.MalformedLabel, "trailing content after table", nil)
	}
	return nil
}

type tokenKind int

const (
	tokenOpen tokenKind = iota
	tokenClose
	tokenText
)

type token struct {
	kind tokenKind
	name string
}

func tokenize(label string) ([]token, error) {
	var tokens []token
	rest := label
	for len(rest) > 0 {
		lt := strings.IndexByte(rest, '<')
		if lt < 0 {
			if strings.TrimSpace(rest) != "" {
				tokens = append(tokens, token{kind: tokenText})
			}
			break
		}
		if strings.TrimSpace(rest[:lt]) != "" {
			tokens = append(tokens, token{kind: tokenText})
		}
		gt := strings.IndexByte(rest[lt:], '>')
		if gt < 0 {
			return nil, errors.New(errors.MalformedLabel, "unterminated tag", nil)
		}
		tag := rest[lt+1 : lt+gt]
		rest = rest[lt+gt+1:]

		if strings.HasPrefix(tag, "/") {
			tokens = append(tokens, token{kind: tokenClose, name: strings.TrimSpace(tag[1:])})
			continue
		}
		name := tag
		if i := strings.IndexAny(tag, " \t\n"); i >= 0 {
			name = tag[:i]
		}
		if name == "" {
			return nil, errors.New(errors.MalformedLabel, "empty tag", nil)
		}
		tokens = append(tokens, token{kind: tokenOpen, name: name})
	}
	return tokens, nil
}

func checkBalance(tokens []token) error {
	var stack []string
	for _, t := range tokens {
		switch t.kind {
		case tokenOpen:
			stack = append(stack, t.name)
		case tokenClose:
			if len(stack) == 0 || stack[len(stack)-1] != t.name {
				return errors.Newf(errors.MalformedLabel, "unbalanced tag %q", t.name)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return errors.Newf(errors.MalformedLabel, "unclosed tag %q", stack[len(stack)-1])
	}
	return nil
}

type labelParser struct {
	tokens []token
	pos    int
}

func (p *labelParser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *labelParser) expect(kind tokenKind, name string) error {
	t, ok := p.peek()
	if !ok || t.kind != kind || (name != "" && t.name != name) {
		return errors.Newf(errors.MalformedLabel, "expected %s", name)
	}
	p.pos++
	return nil
}

func (p *labelParser) parseTable() error {
	if err := p.expect(tokenOpen, "TABLE"); err != nil {
		return err
	}
	rows := 0
	for {
		t, ok := p.peek()
		if !ok {
			return errors.New(errors.MalformedLabel, "table not closed", nil)
		}
		if t.kind == tokenClose && t.name == "TABLE" {
			p.pos++
			break
		}
		if err := p.parseRow(); err != nil {
			return err
		}
		rows++
	}
	if rows == 0 {
		return errors.New(errors.MalformedLabel, "table has no rows", nil)
	}
	return nil
}

func (p *labelParser) parseRow() error {
	if err := p.expect(tokenOpen, "TR"); err != nil {
		return err
	}
	for {
		t, ok := p.peek()
		if !ok {
			return errors.New(errors.MalformedLabel, "row not closed", nil)
		}
		if t.kind == tokenClose && t.name == "TR" {
			p.pos++
			return nil
		}
		if err := p.parseCell(); err != nil {
			return err
		}
	}
}

func (p *labelParser) parseCell() error {
	if err := p.expect(tokenOpen, "TD"); err != nil {
		return err
	}
	for {
		t, ok := p.peek()
		if !ok {
			return errors.New(errors.MalformedLabel, "cell not closed", nil)
		}
		switch {
		case t.kind == tokenClose && t.name == "TD":
			p.pos++
			return nil
		case t.kind == tokenText:
			p.pos++
		case t.kind == tokenOpen && t.name == "TABLE":
			if err := p.parseTable(); err != nil {
				return err
			}
		case t.kind == tokenOpen && t.name == "B":
			p.pos++
			if err := p.expect(tokenText, ""); err != nil {
				return err
			}
			if err := p.expect(tokenClose, "B"); err != nil {
				return err
			}
		default:
			return errors.New(errors.MalformedLabel, "unexpected tag in cell", nil)
		}
	}
}
