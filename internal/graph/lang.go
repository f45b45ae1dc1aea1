package graph

import (
	"path"
	"strings"

	"callmap/internal/lsp"
)

// Language decides which provider-reported symbols are worth a row in the
// diagram. Filters are per-language because providers over-report in
// language-specific ways.
type Language interface {
	// FilterSymbol reports whether the symbol should be kept. parent is nil
	// for top-level symbols.
	FilterSymbol(symbol *lsp.DocumentSymbol, parent *lsp.DocumentSymbol) bool
}

type defaultLang struct{}

func (defaultLang) FilterSymbol(symbol *lsp.DocumentSymbol, parent *lsp.DocumentSymbol) bool {
	switch symbol.Kind {
	case lsp.KindConstant, lsp.KindVariable, lsp.KindEnumMember:
		return false
	case lsp.KindField, lsp.KindProperty:
		// Interface members are signatures, worth showing; struct fields
		// are noise.
		return parent != nil && parent.Kind == lsp.KindInterface
	default:
		return true
	}
}

type rustLang struct{}

func (rustLang) FilterSymbol(symbol *lsp.DocumentSymbol, parent *lsp.DocumentSymbol) bool {
	switch symbol.Kind {
	case lsp.KindConstant, lsp.KindField, lsp.KindEnumMember:
		return false
	case lsp.KindModule:
		if symbol.Name == "tests" {
			return false
		}
	}
	return defaultLang{}.FilterSymbol(symbol, parent)
}

type jstsLang struct{}

func (jstsLang) FilterSymbol(symbol *lsp.DocumentSymbol, parent *lsp.DocumentSymbol) bool {
	// The typescript server reports anonymous callbacks as functions named
	// "xyz callback"; they clutter the diagram without being addressable.
	if symbol.Kind == lsp.KindFunction && strings.HasSuffix(symbol.Name, " callback") {
		return false
	}
	return defaultLang{}.FilterSymbol(symbol, parent)
}

var extLanguages = map[string]Language{
	".rs":  rustLang{},
	".ts":  jstsLang{},
	".tsx": jstsLang{},
	".js":  jstsLang{},
	".jsx": jstsLang{},
	".mjs": jstsLang{},
}

// LanguageForPath picks the symbol filter for a file by extension.
func LanguageForPath(filePath string) Language {
	if lang, ok := extLanguages[strings.ToLower(path.Ext(filePath))]; ok {
		return lang
	}
	return defaultLang{}
}
