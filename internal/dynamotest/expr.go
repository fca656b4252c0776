package dynamotest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// The fake understands the expression subset the stores issue:
//
//	condition: AND / OR / NOT, parentheses, attribute_exists(p), attribute_not_exists(p),
//	           comparisons (= <> < <= > >=) between paths and :values
//	update:    SET p = v [, ...] and REMOVE p [, ...], where v is a path, a :value,
//	           if_not_exists(p, v), list_append(v, v) or v (+|-) v

type item = map[string]types.AttributeValue

type tokKind int

const (
	tokIdent tokKind = iota
	tokName
	tokValue
	tokPunct
	tokEOF
)

type token struct {
	kind tokKind
	text string
}

func tokenize(s string) ([]token, error) {
	var out []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '#' || c == ':' || isIdentChar(c):
			j := i + 1
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			kind := tokIdent
			if c == '#' {
				kind = tokName
			} else if c == ':' {
				kind = tokValue
			}
			out = append(out, token{kind: kind, text: s[i:j]})
			i = j
		case c == '<' || c == '>':
			if i+1 < len(s) && (s[i+1] == '=' || (c == '<' && s[i+1] == '>')) {
				out = append(out, token{kind: tokPunct, text: s[i : i+2]})
				i += 2
				continue
			}
			out = append(out, token{kind: tokPunct, text: s[i : i+1]})
			i++
		case strings.ContainsRune("(),.=+-", rune(c)):
			out = append(out, token{kind: tokPunct, text: s[i : i+1]})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q in expression %q", c, s)
		}
	}
	return append(out, token{kind: tokEOF}), nil
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

type parser struct {
	toks   []token
	pos    int
	names  map[string]string
	values map[string]types.AttributeValue
}

func newParser(expr string, names map[string]string, values map[string]types.AttributeValue) (*parser, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, names: names, values: values}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) expect(s string) error {
	t := p.next()
	if t.kind != tokPunct || t.text != s {
		return fmt.Errorf("expected %q, got %q", s, t.text)
	}
	return nil
}

// path is a resolved document path such as ["user_uses", "u1"].
type path []string

func (p *parser) parsePath() (path, error) {
	var out path
	for {
		t := p.next()
		switch t.kind {
		case tokIdent:
			out = append(out, t.text)
		case tokName:
			n, ok := p.names[t.text]
			if !ok {
				return nil, fmt.Errorf("undefined attribute name %s", t.text)
			}
			out = append(out, n)
		default:
			return nil, fmt.Errorf("expected attribute path, got %q", t.text)
		}
		if !p.isPunct(".") {
			return out, nil
		}
		p.next()
	}
}

func lookup(it item, pth path) (types.AttributeValue, bool) {
	var cur types.AttributeValue = &types.AttributeValueMemberM{Value: it}
	for _, seg := range pth {
		m, ok := cur.(*types.AttributeValueMemberM)
		if !ok {
			return nil, false
		}
		cur, ok = m.Value[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// condition

type condFn func(it item) bool

func parseCondition(expr string, names map[string]string, values map[string]types.AttributeValue) (condFn, error) {
	p, err := newParser(expr, names, values)
	if err != nil {
		return nil, err
	}
	c, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("trailing tokens in condition %q", expr)
	}
	return c, nil
}

func (p *parser) parseOr() (condFn, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(it item) bool { return l(it) || right(it) }
	}
	return left, nil
}

func (p *parser) parseAnd() (condFn, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(it item) bool { return l(it) && right(it) }
	}
	return left, nil
}

func (p *parser) parseUnary() (condFn, error) {
	switch {
	case p.isKeyword("NOT"):
		p.next()
		c, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return func(it item) bool { return !c(it) }, nil
	case p.isPunct("("):
		p.next()
		c, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		return c, p.expect(")")
	case p.isKeyword("attribute_exists"), p.isKeyword("attribute_not_exists"):
		negate := strings.EqualFold(p.next().text, "attribute_not_exists")
		if err := p.expect("("); err != nil {
			return nil, err
		}
		pth, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return func(it item) bool {
			_, ok := lookup(it, pth)
			return ok != negate
		}, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op := p.next()
	if op.kind != tokPunct {
		return nil, fmt.Errorf("expected comparator, got %q", op.text)
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return func(it item) bool {
		a, okA := left(it)
		b, okB := right(it)
		if !okA || !okB {
			return false
		}
		cmp, comparable := compare(a, b)
		if !comparable {
			return op.text == "<>"
		}
		switch op.text {
		case "=":
			return cmp == 0
		case "<>":
			return cmp != 0
		case "<":
			return cmp < 0
		case "<=":
			return cmp <= 0
		case ">":
			return cmp > 0
		case ">=":
			return cmp >= 0
		}
		return false
	}, nil
}

type operandFn func(it item) (types.AttributeValue, bool)

func (p *parser) parseOperand() (operandFn, error) {
	if t := p.peek(); t.kind == tokValue {
		p.next()
		v, ok := p.values[t.text]
		if !ok {
			return nil, fmt.Errorf("undefined attribute value %s", t.text)
		}
		return func(item) (types.AttributeValue, bool) { return v, true }, nil
	}
	pth, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	return func(it item) (types.AttributeValue, bool) { return lookup(it, pth) }, nil
}

func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, err1 := strconv.ParseFloat(av.Value, 64)
		y, err2 := strconv.ParseFloat(bv.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return 0, false
		}
		if av.Value == bv.Value {
			return 0, true
		}
		return 1, true
	}
	return 0, false
}

// update

type setAction struct {
	target path
	value  func(it item) (types.AttributeValue, error)
}

type updatePlan struct {
	sets    []setAction
	removes []path
}

func parseUpdate(expr string, names map[string]string, values map[string]types.AttributeValue) (*updatePlan, error) {
	p, err := newParser(expr, names, values)
	if err != nil {
		return nil, err
	}
	plan := &updatePlan{}
	for p.peek().kind != tokEOF {
		switch {
		case p.isKeyword("SET"):
			p.next()
			for {
				target, err := p.parsePath()
				if err != nil {
					return nil, err
				}
				if err := p.expect("="); err != nil {
					return nil, err
				}
				v, err := p.parseValue()
				if err != nil {
					return nil, err
				}
				plan.sets = append(plan.sets, setAction{target: target, value: v})
				if !p.isPunct(",") {
					break
				}
				p.next()
			}
		case p.isKeyword("REMOVE"):
			p.next()
			for {
				target, err := p.parsePath()
				if err != nil {
					return nil, err
				}
				plan.removes = append(plan.removes, target)
				if !p.isPunct(",") {
					break
				}
				p.next()
			}
		default:
			return nil, fmt.Errorf("unsupported update clause at %q", p.peek().text)
		}
	}
	return plan, nil
}

type valueFn func(it item) (types.AttributeValue, error)

func (p *parser) parseValue() (valueFn, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if !p.isPunct("+") && !p.isPunct("-") {
		return left, nil
	}
	op := p.next().text
	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return func(it item) (types.AttributeValue, error) {
		a, err := left(it)
		if err != nil {
			return nil, err
		}
		b, err := right(it)
		if err != nil {
			return nil, err
		}
		return arith(a, b, op)
	}, nil
}

func (p *parser) parseTerm() (valueFn, error) {
	switch {
	case p.peek().kind == tokValue:
		t := p.next()
		v, ok := p.values[t.text]
		if !ok {
			return nil, fmt.Errorf("undefined attribute value %s", t.text)
		}
		return func(item) (types.AttributeValue, error) { return v, nil }, nil
	case p.isKeyword("if_not_exists"):
		p.next()
		if err := p.expect("("); err != nil {
			return nil, err
		}
		pth, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		def, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return func(it item) (types.AttributeValue, error) {
			if v, ok := lookup(it, pth); ok {
				return v, nil
			}
			return def(it)
		}, nil
	case p.isKeyword("list_append"):
		p.next()
		if err := p.expect("("); err != nil {
			return nil, err
		}
		a, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		b, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return func(it item) (types.AttributeValue, error) {
			x, err := a(it)
			if err != nil {
				return nil, err
			}
			y, err := b(it)
			if err != nil {
				return nil, err
			}
			lx, okX := x.(*types.AttributeValueMemberL)
			ly, okY := y.(*types.AttributeValueMemberL)
			if !okX || !okY {
				return nil, fmt.Errorf("list_append operands must be lists")
			}
			out := make([]types.AttributeValue, 0, len(lx.Value)+len(ly.Value))
			out = append(out, lx.Value...)
			out = append(out, ly.Value...)
			return &types.AttributeValueMemberL{Value: out}, nil
		}, nil
	}

	pth, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	return func(it item) (types.AttributeValue, error) {
		v, ok := lookup(it, pth)
		if !ok {
			return nil, fmt.Errorf("the provided expression refers to an attribute that does not exist in the item: %s", strings.Join(pth, "."))
		}
		return v, nil
	}, nil
}

func arith(a, b types.AttributeValue, op string) (types.AttributeValue, error) {
	an, okA := a.(*types.AttributeValueMemberN)
	bn, okB := b.(*types.AttributeValueMemberN)
	if !okA || !okB {
		return nil, fmt.Errorf("arithmetic operands must be numbers")
	}
	x, errX := strconv.ParseInt(an.Value, 10, 64)
	y, errY := strconv.ParseInt(bn.Value, 10, 64)
	if errX == nil && errY == nil {
		if op == "-" {
			y = -y
		}
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(x+y, 10)}, nil
	}
	fx, err := strconv.ParseFloat(an.Value, 64)
	if err != nil {
		return nil, err
	}
	fy, err := strconv.ParseFloat(bn.Value, 64)
	if err != nil {
		return nil, err
	}
	if op == "-" {
		fy = -fy
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(fx+fy, 'f', -1, 64)}, nil
}

// apply evaluates every value against the original item, then writes into a copy.
func (u *updatePlan) apply(orig item) (item, error) {
	vals := make([]types.AttributeValue, len(u.sets))
	for i, s := range u.sets {
		v, err := s.value(orig)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	out := copyItem(orig)
	for i, s := range u.sets {
		if err := setPath(out, s.target, copyValue(vals[i])); err != nil {
			return nil, err
		}
	}
	for _, r := range u.removes {
		removePath(out, r)
	}
	return out, nil
}

func setPath(it item, pth path, v types.AttributeValue) error {
	cur := it
	for _, seg := range pth[:len(pth)-1] {
		m, ok := cur[seg].(*types.AttributeValueMemberM)
		if !ok {
			return fmt.Errorf("the document path provided in the update expression is invalid for update: %s", strings.Join(pth, "."))
		}
		cur = m.Value
	}
	cur[pth[len(pth)-1]] = v
	return nil
}

func removePath(it item, pth path) {
	cur := it
	for _, seg := range pth[:len(pth)-1] {
		m, ok := cur[seg].(*types.AttributeValueMemberM)
		if !ok {
			return
		}
		cur = m.Value
	}
	delete(cur, pth[len(pth)-1])
}

func copyItem(it item) item {
	out := make(item, len(it))
	for k, v := range it {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v types.AttributeValue) types.AttributeValue {
	switch tv := v.(type) {
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: copyItem(tv.Value)}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(tv.Value))
		for i, e := range tv.Value {
			l[i] = copyValue(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	}
	return v
}
