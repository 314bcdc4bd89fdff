package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// InputRoot is the scope key holding the caller's input.
const InputRoot = "input"

var (
	segmentPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	referencePattern = regexp.MustCompile(`\$\{([^{}]*)\}`)
)

// Path is a parsed dot-separated reference.
type Path []string

// ParsePath parses "step.field.sub" into a Path.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrInvalidDefinition)
	}
	segments := strings.Split(s, ".")
	for _, seg := range segments {
		if !segmentPattern.MatchString(seg) {
			return nil, fmt.Errorf("%w: malformed reference %q", ErrInvalidDefinition, s)
		}
	}
	return Path(segments), nil
}

// Root returns the first segment.
func (p Path) Root() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Field returns the second segment, or "" for whole-payload references.
func (p Path) Field() string {
	if len(p) < 2 {
		return ""
	}
	return p[1]
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Lookup walks scope along p.
//
// Maps with string keys are indexed by segment, slices and arrays by
// numeric segment, and structs by json tag or field name.
func (p Path) Lookup(scope map[string]any) (any, bool) {
	var cur any = scope
	for _, seg := range p {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(cur any, seg string) (any, bool) {
	switch v := cur.(type) {
	case map[string]any:
		next, ok := v[seg]
		return next, ok
	case map[string]string:
		next, ok := v[seg]
		return next, ok
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(cur)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := strings.Split(f.Tag.Get("json"), ",")[0]
			if name == seg || (name == "" && f.Name == seg) {
				return rv.Field(i).Interface(), true
			}
		}
	}
	return nil, false
}

// node is a compiled template element.
type node interface {
	resolve(scope map[string]any) (any, error)
	refs(out []Path) []Path
}

type literalNode struct{ value any }

func (n literalNode) resolve(map[string]any) (any, error) { return n.value, nil }
func (n literalNode) refs(out []Path) []Path              { return out }

type refNode struct{ path Path }

// resolve returns a deep copy so a capability cannot mutate the stored
// result of an earlier step.
func (n refNode) resolve(scope map[string]any) (any, error) {
	v, ok := n.path.Lookup(scope)
	if !ok {
		return nil, fmt.Errorf("%w: ${%s}", ErrUnresolvedVariable, n.path)
	}
	return cloneValue(v), nil
}

func (n refNode) refs(out []Path) []Path { return append(out, n.path) }

type interpPart struct {
	text string
	path Path
}

type interpNode struct{ parts []interpPart }

func (n interpNode) resolve(scope map[string]any) (any, error) {
	var b strings.Builder
	for _, part := range n.parts {
		if part.path == nil {
			b.WriteString(part.text)
			continue
		}
		v, ok := part.path.Lookup(scope)
		if !ok {
			return nil, fmt.Errorf("%w: ${%s}", ErrUnresolvedVariable, part.path)
		}
		b.WriteString(stringify(v))
	}
	return b.String(), nil
}

func (n interpNode) refs(out []Path) []Path {
	for _, part := range n.parts {
		if part.path != nil {
			out = append(out, part.path)
		}
	}
	return out
}

type mapNode map[string]node

func (n mapNode) resolve(scope map[string]any) (any, error) {
	out := make(map[string]any, len(n))
	for k, child := range n {
		v, err := child.resolve(scope)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (n mapNode) refs(out []Path) []Path {
	for _, child := range n {
		out = child.refs(out)
	}
	return out
}

type listNode []node

func (n listNode) resolve(scope map[string]any) (any, error) {
	out := make([]any, len(n))
	for i, child := range n {
		v, err := child.resolve(scope)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (n listNode) refs(out []Path) []Path {
	for _, child := range n {
		out = child.refs(out)
	}
	return out
}

// Template is a compiled step input.
type Template struct {
	root mapNode
}

// CompileTemplate parses every reference in input.
func CompileTemplate(input map[string]any) (*Template, error) {
	root := make(mapNode, len(input))
	for k, v := range input {
		n, err := compileNode(v)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", k, err)
		}
		root[k] = n
	}
	return &Template{root: root}, nil
}

func compileNode(v any) (node, error) {
	switch val := v.(type) {
	case string:
		return compileString(val)
	case map[string]any:
		m := make(mapNode, len(val))
		for k, child := range val {
			n, err := compileNode(child)
			if err != nil {
				return nil, err
			}
			m[k] = n
		}
		return m, nil
	case []any:
		l := make(listNode, len(val))
		for i, child := range val {
			n, err := compileNode(child)
			if err != nil {
				return nil, err
			}
			l[i] = n
		}
		return l, nil
	case []string:
		l := make(listNode, len(val))
		for i, child := range val {
			n, err := compileString(child)
			if err != nil {
				return nil, err
			}
			l[i] = n
		}
		return l, nil
	default:
		return literalNode{value: v}, nil
	}
}

func compileString(s string) (node, error) {
	matches := referencePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		if strings.Contains(s, "${") {
			return nil, fmt.Errorf("%w: unterminated reference in %q", ErrInvalidDefinition, s)
		}
		return literalNode{value: s}, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		p, err := ParsePath(s[matches[0][2]:matches[0][3]])
		if err != nil {
			return nil, err
		}
		return refNode{path: p}, nil
	}

	var parts []interpPart
	last := 0
	for _, m := range matches {
		if m[0] > last {
			parts = append(parts, interpPart{text: s[last:m[0]]})
		}
		p, err := ParsePath(s[m[2]:m[3]])
		if err != nil {
			return nil, err
		}
		parts = append(parts, interpPart{path: p})
		last = m[1]
	}
	if last < len(s) {
		parts = append(parts, interpPart{text: s[last:]})
	}
	return interpNode{parts: parts}, nil
}

// References returns every path the template reads.
func (t *Template) References() []Path {
	return t.root.refs(nil)
}

// Resolve substitutes references against scope.
func (t *Template) Resolve(scope map[string]any) (map[string]any, error) {
	v, err := t.root.resolve(scope)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	return deepCopy(reflect.ValueOf(v)).Interface()
}

// deepCopy copies maps, slices, arrays, pointers and exported struct
// fields. Unexported struct fields are copied shallowly.
func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(deepCopy(v.Elem()))
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if f := out.Field(i); f.CanSet() {
				f.Set(deepCopy(v.Field(i)))
			}
		}
		return out
	default:
		return v
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case fmt.Stringer:
		return val.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}
