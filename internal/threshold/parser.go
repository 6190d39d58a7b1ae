// Package threshold implements the Threshold Evaluator: parsing the
// KEY{SEL} AGG OP NUMBER grammar and evaluating it against a metrics
// snapshot (spec §4.7).
package threshold

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nogcio/wrkr/internal/value"
)

// Aggregation identifies how matched series are reduced to one number.
type Aggregation int

const (
	AggAvg Aggregation = iota
	AggMin
	AggMax
	AggCount
	AggRate
	AggPercentile
)

func (a Aggregation) String() string {
	switch a {
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggCount:
		return "count"
	case AggRate:
		return "rate"
	case AggPercentile:
		return "p(N)"
	default:
		return "unknown"
	}
}

// Op is a threshold comparison operator.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpEQ Op = "=="
)

// Expr is the parsed right-hand side: aggregation, comparison, constant.
type Expr struct {
	Agg        Aggregation
	Percentile int // only meaningful when Agg == AggPercentile
	Op         Op
	RHS        float64
	Raw        string
}

// Threshold is one fully-parsed threshold: which series it targets plus the
// expression to evaluate against them.
type Threshold struct {
	MetricName string
	Selector   value.Tags
	Expr       Expr
}

// ParseError reports a malformed threshold string; these surface as
// InvalidThreshold, exit code 30.
type ParseError struct {
	Input string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid threshold %q: %s", e.Input, e.Msg)
}

// KindMismatchError reports a threshold whose aggregation cannot apply to
// the metric's recorded Kind (e.g. p(95) against a Counter); these also
// surface as InvalidThreshold, exit code 30, but are only detectable once
// the engine has recorded at least one sample for the metric.
type KindMismatchError struct {
	MetricName string
	Agg        Aggregation
	Kind       string
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("invalid threshold: aggregation %s does not apply to metric %q (kind %s)", e.Agg, e.MetricName, e.Kind)
}

// Parse parses one "KEY" "EXPR" pair, e.g. key="http_req_duration{group=login}",
// expr="p(95) < 500".
func Parse(key, expr string) (*Threshold, error) {
	name, sel, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	e, err := parseExpr(expr)
	if err != nil {
		return nil, err
	}
	return &Threshold{MetricName: name, Selector: sel, Expr: *e}, nil
}

func parseKey(key string) (string, value.Tags, error) {
	key = strings.TrimSpace(key)
	open := strings.IndexByte(key, '{')
	if open < 0 {
		if key == "" {
			return "", value.Tags{}, &ParseError{key, "metric name is empty"}
		}
		return key, value.NewTags(), nil
	}
	if !strings.HasSuffix(key, "}") {
		return "", value.Tags{}, &ParseError{key, "unterminated selector"}
	}
	name := strings.TrimSpace(key[:open])
	if name == "" {
		return "", value.Tags{}, &ParseError{key, "metric name is empty"}
	}
	selBody := key[open+1 : len(key)-1]
	tags := value.NewTags()
	if strings.TrimSpace(selBody) != "" {
		for _, pair := range strings.Split(selBody, ",") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				return "", value.Tags{}, &ParseError{key, fmt.Sprintf("malformed selector pair %q", pair)}
			}
			k := strings.TrimSpace(kv[0])
			v := strings.TrimSpace(kv[1])
			if k == "" || v == "" {
				return "", value.Tags{}, &ParseError{key, fmt.Sprintf("malformed selector pair %q", pair)}
			}
			tags = tags.With(k, value.TagString(v))
		}
	}
	return name, tags, nil
}

var ops = []Op{OpLE, OpGE, OpLT, OpGT, OpEQ} // order matters: check 2-char ops first

func parseExpr(expr string) (*Expr, error) {
	raw := expr
	expr = strings.TrimSpace(expr)

	var agg Aggregation
	var pct int
	var rest string

	switch {
	case strings.HasPrefix(expr, "p("):
		close := strings.IndexByte(expr, ')')
		if close < 0 {
			return nil, &ParseError{raw, "unterminated p(N)"}
		}
		n, err := strconv.Atoi(strings.TrimSpace(expr[2:close]))
		if err != nil || n < 1 || n > 100 {
			return nil, &ParseError{raw, "p(N) requires 1<=N<=100"}
		}
		agg, pct = AggPercentile, n
		rest = expr[close+1:]
	case strings.HasPrefix(expr, "avg"):
		agg, rest = AggAvg, expr[3:]
	case strings.HasPrefix(expr, "min"):
		agg, rest = AggMin, expr[3:]
	case strings.HasPrefix(expr, "max"):
		agg, rest = AggMax, expr[3:]
	case strings.HasPrefix(expr, "count"):
		agg, rest = AggCount, expr[5:]
	case strings.HasPrefix(expr, "rate"):
		agg, rest = AggRate, expr[4:]
	default:
		// Accept the common "p95"/"p99" shorthand seen in many scenario
		// files in addition to the formal p(N) grammar.
		if len(expr) > 1 && expr[0] == 'p' {
			i := 1
			for i < len(expr) && expr[i] >= '0' && expr[i] <= '9' {
				i++
			}
			if i > 1 {
				n, err := strconv.Atoi(expr[1:i])
				if err == nil && n >= 1 && n <= 100 {
					agg, pct, rest = AggPercentile, n, expr[i:]
					break
				}
			}
		}
		return nil, &ParseError{raw, "expected one of avg,min,max,count,rate,p(N)"}
	}

	rest = strings.TrimSpace(rest)
	var op Op
	for _, candidate := range ops {
		if strings.HasPrefix(rest, string(candidate)) {
			op = candidate
			rest = strings.TrimSpace(rest[len(candidate):])
			break
		}
	}
	if op == "" {
		return nil, &ParseError{raw, "expected one of <,<=,>,>=,=="}
	}

	rhs, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return nil, &ParseError{raw, fmt.Sprintf("invalid number %q", rest)}
	}

	return &Expr{Agg: agg, Percentile: pct, Op: op, RHS: rhs, Raw: canonicalExpr(agg, pct, op, rhs)}, nil
}

// canonicalExpr renders a parsed expression back to a single, spacing-free
// form so two equivalent inputs ("avg < 0" and "avg<0") report identically
// in threshold-violation output.
func canonicalExpr(agg Aggregation, pct int, op Op, rhs float64) string {
	aggStr := agg.String()
	if agg == AggPercentile {
		aggStr = fmt.Sprintf("p(%d)", pct)
	}
	return fmt.Sprintf("%s%s%s", aggStr, op, strconv.FormatFloat(rhs, 'g', -1, 64))
}
