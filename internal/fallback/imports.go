package fallback

import (
	"regexp"
	"strings"
)

var (
	importLineRe = regexp.MustCompile(`^\s*import\s+([\w.]+(?:\s+as\s+\w+)?(?:\s*,\s*[\w.]+(?:\s+as\s+\w+)?)*)\s*$`)
	fromLineRe   = regexp.MustCompile(`^\s*from\s+([.\w]+)\s+import\s+(.+?)\s*$`)
	clauseRe     = regexp.MustCompile(`^([\w.]+)(?:\s+as\s+(\w+))?$`)
)

// importRef is one name bound by a from-import: the module specifier (which
// may carry leading relative dots) and the symbol imported from it.
type importRef struct {
	module string
	symbol string
}

// fileImports holds the import bindings of one file.
type fileImports struct {
	// aliases maps a local module alias to its absolute dotted specifier
	// ("import a.b as x" binds x; a bare "import a.b" binds a).
	aliases map[string]string
	// names maps a local callable name to its origin
	// ("from pkg import f as g" binds g).
	names map[string]importRef
}

// parseImports scans a file's lines for import statement forms. Unparseable
// lines are ignored; this is a text heuristic, not a parser.
func parseImports(lines []string) *fileImports {
	imports := &fileImports{
		aliases: make(map[string]string),
		names:   make(map[string]importRef),
	}

	for _, line := range lines {
		line = stripComment(line)

		if m := fromLineRe.FindStringSubmatch(line); m != nil {
			module := m[1]
			for _, clause := range strings.Split(m[2], ",") {
				c := clauseRe.FindStringSubmatch(strings.TrimSpace(clause))
				if c == nil || c[1] == "*" || strings.Contains(c[1], ".") {
					continue
				}
				local := c[1]
				if c[2] != "" {
					local = c[2]
				}
				imports.names[local] = importRef{module: module, symbol: c[1]}
			}
			continue
		}

		if m := importLineRe.FindStringSubmatch(line); m != nil {
			for _, clause := range strings.Split(m[1], ",") {
				c := clauseRe.FindStringSubmatch(strings.TrimSpace(clause))
				if c == nil {
					continue
				}
				if c[2] != "" {
					imports.aliases[c[2]] = c[1]
				} else {
					// A bare "import a.b.c" binds only the root name.
					root := strings.SplitN(c[1], ".", 2)[0]
					imports.aliases[root] = root
				}
			}
		}
	}

	return imports
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}
