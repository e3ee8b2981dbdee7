package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

// DefaultJoiner separates several "<op> <value>" parts for one field.
const DefaultJoiner = "&&"

var castPattern = regexp.MustCompile(`^([a-z]+)\((.+)\)$`)

type castFunc func(string) (interface{}, error)

var casts = map[string]castFunc{
	"int": func(raw string) (interface{}, error) {
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	},
	"float": func(raw string) (interface{}, error) {
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	},
	"str": func(raw string) (interface{}, error) {
		return raw, nil
	},
	"bool": func(raw string) (interface{}, error) {
		return strconv.ParseBool(strings.TrimSpace(raw))
	},
}

// ParseKeywordFilters expands compact per-field filter strings such as
// "> int(3) && < int(10)" or "in open,draft" into clauses appended after base.
// An empty joiner falls back to DefaultJoiner.
func ParseKeywordFilters(base []Clause, kw map[string]string, joiner string) ([]Clause, error) {
	if joiner == "" {
		joiner = DefaultJoiner
	}
	out := make([]Clause, 0, len(base)+len(kw))
	out = append(out, base...)

	fields := make([]string, 0, len(kw))
	for field := range kw {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		for _, part := range strings.Split(kw[field], joiner) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			clause, err := parseClause(field, part)
			if err != nil {
				return nil, err
			}
			out = append(out, clause)
		}
	}
	return out, nil
}

func parseClause(field, part string) (Clause, error) {
	rawOp, rawValue, ok := strings.Cut(part, " ")
	if !ok {
		return Clause{}, invalid("filter %q on %s: expected \"<op> <value>\"", part, field)
	}
	op := Operator(rawOp)
	if !op.Valid() {
		return Clause{}, invalid("filter %q on %s: unsupported operator %q", part, field, rawOp)
	}
	rawValue = strings.TrimSpace(rawValue)

	cast := castFunc(func(raw string) (interface{}, error) { return raw, nil })
	if m := castPattern.FindStringSubmatch(rawValue); m != nil {
		fn, known := casts[m[1]]
		if !known {
			return Clause{}, invalid("filter %q on %s: unknown cast %q", part, field, m[1])
		}
		cast = fn
		rawValue = m[2]
	}

	if strings.Contains(rawValue, ",") {
		items := strings.Split(rawValue, ",")
		values := make([]interface{}, 0, len(items))
		for _, item := range items {
			v, err := cast(item)
			if err != nil {
				return Clause{}, invalid("filter %q on %s: %v", part, field, err)
			}
			values = append(values, v)
		}
		return Clause{Field: field, Op: op, Value: values}, nil
	}

	v, err := cast(rawValue)
	if err != nil {
		return Clause{}, invalid("filter %q on %s: %v", part, field, err)
	}
	return Clause{Field: field, Op: op, Value: v}, nil
}

func invalid(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf(format, args...))
}
