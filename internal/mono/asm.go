package mono

import (
	"fmt"
	"strconv"
	"strings"
)

// Render substitutes the symbol placeholders of the template.
// `{{` and `}}` stand for literal braces.
func (a *GlobalAsm) Render() (string, error) {
	var b strings.Builder
	t := a.Template
	for i := 0; i < len(t); i++ {
		c := t[i]
		switch {
		case c == '{' && i+1 < len(t) && t[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(t) && t[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(t[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder in global asm at offset %d", i)
			}
			n, err := strconv.Atoi(t[i+1 : i+end])
			if err != nil || n < 0 || n >= len(a.Symbols) {
				return "", fmt.Errorf("invalid symbol operand %q in global asm", t[i:i+end+1])
			}
			b.WriteString(a.Symbols[n])
			i += end
		case c == '}':
			return "", fmt.Errorf("unmatched `}` in global asm at offset %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
