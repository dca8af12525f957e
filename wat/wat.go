package wat

import "fmt"

// SyntaxError reports a problem in WebAssembly text source, with the
// 1-based line and column of the offending token.
type SyntaxError struct {
	Msg  string
	Line int
	Col  int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("wat: %d:%d: %s", e.Line, e.Col, e.Msg)
}

// Compile translates WebAssembly text format source into a binary module.
// The result is validated before encoding, so malformed modules are caught
// here rather than at instantiation.
func Compile(source string) ([]byte, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	mod, err := p.parseModule()
	if err != nil {
		return nil, err
	}
	if err := mod.Validate(); err != nil {
		return nil, err
	}
	return mod.Encode(), nil
}
