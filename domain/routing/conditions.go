package routing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PaesslerAG/gval"
	"github.com/tidwall/gjson"
)

// lang is the shared gval language every condition compiles against. "in"
// and "not_in" have no infix spelling in gval's grammar, so they're
// registered as functions; "matches_regex" likewise.
var lang = gval.Full(
	gval.Function("in", inFunc),
	gval.Function("notIn", func(args ...interface{}) (interface{}, error) {
		r, err := inFunc(args...)
		if err != nil {
			return nil, err
		}
		return !r.(bool), nil
	}),
	gval.Function("matchesRegex", matchesFunc),
)

func inFunc(args ...interface{}) (interface{}, error) {
	if len(args) < 1 {
		return false, nil
	}
	needle := fmt.Sprintf("%v", args[0])
	for _, v := range args[1:] {
		if fmt.Sprintf("%v", v) == needle {
			return true, nil
		}
	}
	return false, nil
}

func matchesFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("routing: matchesRegex takes exactly 2 arguments")
	}
	pattern, ok := args[1].(string)
	if !ok {
		return false, fmt.Errorf("routing: matchesRegex pattern must be a string")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("routing: invalid regex %q: %w", pattern, err)
	}
	return re.MatchString(fmt.Sprintf("%v", args[0])), nil
}

// evaluate reports whether every condition of the rule holds against ctx.
// Conditions compose with AND; an empty condition set always matches.
func evaluate(conditions []Condition, ctx Context) (bool, error) {
	vars := ctx.baseFields()

	for i, c := range conditions {
		varName, val := resolveField(c.Field, ctx, vars)
		vars[varName] = val

		expr, err := exprFor(c, varName)
		if err != nil {
			return false, fmt.Errorf("routing: condition %d: %w", i, err)
		}

		result, err := gval.Evaluate(expr, vars, lang)
		if err != nil {
			return false, fmt.Errorf("routing: condition %d evaluation failed: %w", i, err)
		}
		matched, ok := result.(bool)
		if !ok || !matched {
			return false, nil
		}
	}
	return true, nil
}

// resolveField returns the gval variable name a condition's Field should be
// referenced by, populating vars as needed. Plain fields already live under
// their own name in vars (via Context.baseFields); "metadata.<path>" fields
// are resolved out-of-band via gjson against MetadataJSON, since gval's dot
// selector would otherwise try to parse the literal dots in the field name
// as nested map traversal and never find a matching key.
func resolveField(field string, ctx Context, vars map[string]interface{}) (string, interface{}) {
	if !strings.HasPrefix(field, "metadata.") {
		return field, vars[field]
	}
	path := strings.TrimPrefix(field, "metadata.")
	synthetic := "__metadata_" + strings.ReplaceAll(path, ".", "_")
	result := gjson.Get(ctx.MetadataJSON, path)
	if !result.Exists() {
		return synthetic, nil
	}
	return synthetic, result.Value()
}

// exprFor renders condition c as a gval expression string referencing
// varName for its left-hand operand.
func exprFor(c Condition, varName string) (string, error) {
	switch c.Op {
	case OpEquals:
		return varName + " == " + literal(c.Value), nil
	case OpNotEquals:
		return varName + " != " + literal(c.Value), nil
	case OpLessThan:
		return varName + " < " + literal(c.Value), nil
	case OpLessOrEqual:
		return varName + " <= " + literal(c.Value), nil
	case OpGreaterThan:
		return varName + " > " + literal(c.Value), nil
	case OpGreaterEqual:
		return varName + " >= " + literal(c.Value), nil
	case OpIn:
		return "in(" + varName + ", " + literalList(c.Value) + ")", nil
	case OpNotIn:
		return "notIn(" + varName + ", " + literalList(c.Value) + ")", nil
	case OpMatchesRegex:
		return "matchesRegex(" + varName + ", " + literal(c.Value) + ")", nil
	default:
		return "", fmt.Errorf("unknown operator %q", c.Op)
	}
}

func literal(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case int, int64, int32, float64, float32:
		return fmt.Sprintf("%v", x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strconv.Quote(fmt.Sprintf("%v", x))
	}
}

// literalList renders v (expected []interface{}) as a comma-separated list
// of gval literals suitable for splicing into a function call's argument
// list: in(field, a, b, c), not a parenthesized tuple.
func literalList(v interface{}) string {
	items, ok := v.([]interface{})
	if !ok {
		return literal(v)
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = literal(it)
	}
	return strings.Join(parts, ", ")
}
