package selector

import (
	"fmt"
	"regexp"
	"strings"
)

// node evaluates to nil (unknown), bool, float64 or string.
type node interface {
	eval(properties map[string]any) any
}

type literal struct{ value any }

func (l literal) eval(map[string]any) any { return l.value }

type identifier string

func (id identifier) eval(properties map[string]any) any {
	v, ok := properties[string(id)]
	if !ok {
		return nil
	}
	return normalize(v)
}

// normalize maps property values onto the three value kinds of the evaluator.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return t
	case []byte:
		return string(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case fmt.Stringer:
		return t.String()
	default:
		return nil
	}
}

type andNode struct{ left, right node }

func (n andNode) eval(p map[string]any) any {
	l, r := n.left.eval(p), n.right.eval(p)
	if l == false || r == false {
		return false
	}
	if l == true && r == true {
		return true
	}
	return nil
}

type orNode struct{ left, right node }

func (n orNode) eval(p map[string]any) any {
	l, r := n.left.eval(p), n.right.eval(p)
	if l == true || r == true {
		return true
	}
	if l == false && r == false {
		return false
	}
	return nil
}

type notNode struct{ operand node }

func (n notNode) eval(p map[string]any) any {
	if b, ok := n.operand.eval(p).(bool); ok {
		return !b
	}
	return nil
}

type compareNode struct {
	op          string
	left, right node
}

func (n compareNode) eval(p map[string]any) any {
	return compare(n.op, n.left.eval(p), n.right.eval(p))
}

// compare applies op to two values. Unknown operands give unknown; values
// of different kinds never compare equal, and only numbers are ordered.
func compare(op string, l, r any) any {
	if l == nil || r == nil {
		return nil
	}
	switch lv := l.(type) {
	case float64:
		rv, ok := r.(float64)
		if !ok {
			return false
		}
		switch op {
		case "=":
			return lv == rv
		case "<>":
			return lv != rv
		case "<":
			return lv < rv
		case "<=":
			return lv <= rv
		case ">":
			return lv > rv
		case ">=":
			return lv >= rv
		}
	case string, bool:
		if !sameKind(l, r) {
			return false
		}
		switch op {
		case "=":
			return l == r
		case "<>":
			return l != r
		}
		return false
	}
	return false
}

func sameKind(l, r any) bool {
	switch l.(type) {
	case string:
		_, ok := r.(string)
		return ok
	case bool:
		_, ok := r.(bool)
		return ok
	case float64:
		_, ok := r.(float64)
		return ok
	}
	return false
}

type arithNode struct {
	op          string
	left, right node
}

func (n arithNode) eval(p map[string]any) any {
	l, lok := n.left.eval(p).(float64)
	r, rok := n.right.eval(p).(float64)
	if !lok || !rok {
		return nil
	}
	switch n.op {
	case "+":
		return l + r
	case "-":
		return l - r
	case "*":
		return l * r
	case "/":
		if r == 0 {
			return nil
		}
		return l / r
	}
	return nil
}

type betweenNode struct{ operand, low, high node }

func (n betweenNode) eval(p map[string]any) any {
	v := n.operand.eval(p)
	return andNode{
		literal{compare(">=", v, n.low.eval(p))},
		literal{compare("<=", v, n.high.eval(p))},
	}.eval(p)
}

type inNode struct {
	operand node
	values  []string
}

func (n inNode) eval(p map[string]any) any {
	v := n.operand.eval(p)
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, candidate := range n.values {
		if s == candidate {
			return true
		}
	}
	return false
}

type likeNode struct {
	operand node
	pattern *regexp.Regexp
}

func (n likeNode) eval(p map[string]any) any {
	v := n.operand.eval(p)
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	return n.pattern.MatchString(s)
}

type isNullNode struct {
	operand node
	negate  bool
}

func (n isNullNode) eval(p map[string]any) any {
	isNull := n.operand.eval(p) == nil
	return isNull != n.negate
}

// likePattern translates a LIKE pattern into an anchored regular expression:
// % matches any sequence, _ any single character, and escape makes the next
// character literal.
func likePattern(pattern, escape string) (*regexp.Regexp, error) {
	var esc rune = -1
	if escape != "" {
		esc = []rune(escape)[0]
	}

	var sb strings.Builder
	sb.WriteString("(?s)^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == esc:
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("pattern %q ends with escape character", pattern)
			}
			i++
			sb.WriteString(regexp.QuoteMeta(string(runes[i])))
		case r == '%':
			sb.WriteString(".*")
		case r == '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
