// Package guard statically screens model-generated SQL before it is allowed
// anywhere near the operational database. It is a pattern-based first line of
// defense, not a SQL parser: tables are allow-listed, destructive patterns and
// exfiltration functions are deny-listed, and a heuristic safety score rejects
// technically legal but suspicious queries.
package guard

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeForbiddenCommand  = "FORBIDDEN_COMMAND"
	CodeForbiddenPattern  = "FORBIDDEN_PATTERN"
	CodeUnauthorizedTable = "UNAUTHORIZED_TABLE"
	CodeForbiddenFunction = "FORBIDDEN_FUNCTION"
	CodeQueryTooLong      = "QUERY_TOO_LONG"
	CodeTooManyUnions     = "TOO_MANY_UNIONS"
	CodeUnbalancedParens  = "UNBALANCED_PARENTHESES"
	CodeTooDeepSubquery   = "TOO_DEEP_SUBQUERY"
	CodeLowSafetyScore    = "LOW_SAFETY_SCORE"
	CodeTableNotFound     = "TABLE_NOT_FOUND"
	CodeColumnNotFound    = "COLUMN_NOT_FOUND"
)

// ValidationError is a policy rejection. Details only ever echoes policy
// facts (matched pattern name, allowed tables) that are safe to expose.
type ValidationError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code, message string, details map[string]any) *ValidationError {
	return &ValidationError{Code: code, Message: message, Details: details}
}

type denyPattern struct {
	name string
	re   *regexp.Regexp
}

var denyPatterns = []denyPattern{
	{"drop", regexp.MustCompile(`(?i)\bdrop\s+(table|database|schema|index|view|sequence|function)\b`)},
	{"delete", regexp.MustCompile(`(?i)\bdelete\s+from\b`)},
	{"update", regexp.MustCompile(`(?i)\bupdate\s+[a-z_"][\w".]*\s+set\b`)},
	{"insert", regexp.MustCompile(`(?i)\binsert\s+into\b`)},
	{"truncate", regexp.MustCompile(`(?i)\btruncate\b`)},
	{"alter", regexp.MustCompile(`(?i)\balter\s+table\b`)},
	{"create", regexp.MustCompile(`(?i)\bcreate\s+(table|database)\b`)},
	{"grant-revoke", regexp.MustCompile(`(?i)\b(grant|revoke)\b`)},
	{"stacked-statement", regexp.MustCompile(`(?i);\s*select\b`)},
	{"trailing-statement", regexp.MustCompile(`;\s*\S`)},
	{"line-comment", regexp.MustCompile(`--`)},
	{"block-comment", regexp.MustCompile(`/\*`)},
	{"command-exec", regexp.MustCompile(`(?i)\b(xp_cmdshell|exec\s+master|shell_exec)\b`)},
}

// Functions the policy never allows a generated query to call. These cover
// file reads, cross-database links, large-object escape hatches, and
// artificial delays.
var deniedFunctions = map[string]struct{}{
	"pg_sleep":             {},
	"pg_sleep_for":         {},
	"pg_sleep_until":       {},
	"pg_read_file":         {},
	"pg_read_binary_file":  {},
	"pg_ls_dir":            {},
	"pg_stat_file":         {},
	"dblink":               {},
	"dblink_connect":       {},
	"dblink_exec":          {},
	"lo_import":            {},
	"lo_export":            {},
	"pg_terminate_backend": {},
	"pg_cancel_backend":    {},
}

// Aggregates and common scalar helpers are skipped by the function scan; they
// are ordinary SELECT vocabulary, not escape hatches.
var allowedFunctions = map[string]struct{}{
	"count": {}, "sum": {}, "avg": {}, "max": {}, "min": {},
	"cast": {}, "coalesce": {}, "nullif": {},
	"lower": {}, "upper": {}, "trim": {}, "substring": {}, "length": {},
	"round": {}, "abs": {}, "now": {},
	"to_char": {}, "to_date": {}, "date_trunc": {}, "extract": {},
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	tableRe      = regexp.MustCompile(`(?i)\b(?:from|join)\s+"?([a-zA-Z_][\w.]*)"?`)
	functionRe   = regexp.MustCompile(`(?i)\b([a-z_][\w]*)\s*\(`)
	unionRe      = regexp.MustCompile(`(?i)\bunion\b`)
	joinRe       = regexp.MustCompile(`(?i)\bjoin\b`)
	likeRe       = regexp.MustCompile(`(?i)\blike\b`)
	aggregateRe  = regexp.MustCompile(`(?i)\b(count|sum|avg|max|min)\s*\(`)
)

type Options struct {
	AllowedTables  []string
	MaxQueryLength int
	MaxUnions      int
	MaxParenDepth  int
	MinSafetyScore int
}

type Policy struct {
	allowedTables  map[string]struct{}
	allowedSorted  []string
	maxQueryLength int
	maxUnions      int
	maxParenDepth  int
	minSafetyScore int
}

func NewPolicy(opts Options) (*Policy, error) {
	if len(opts.AllowedTables) == 0 {
		return nil, fmt.Errorf("at least one allowed table is required")
	}
	maxLength := opts.MaxQueryLength
	if maxLength <= 0 {
		maxLength = 10000
	}
	maxUnions := opts.MaxUnions
	if maxUnions <= 0 {
		maxUnions = 2
	}
	maxDepth := opts.MaxParenDepth
	if maxDepth <= 0 {
		maxDepth = 10
	}
	minScore := opts.MinSafetyScore
	if minScore <= 0 {
		minScore = 50
	}

	allowed := make(map[string]struct{}, len(opts.AllowedTables))
	sorted := make([]string, 0, len(opts.AllowedTables))
	for _, table := range opts.AllowedTables {
		table = strings.ToLower(strings.TrimSpace(table))
		if table == "" {
			continue
		}
		if _, ok := allowed[table]; ok {
			continue
		}
		allowed[table] = struct{}{}
		sorted = append(sorted, table)
	}
	sort.Strings(sorted)

	return &Policy{
		allowedTables:  allowed,
		allowedSorted:  sorted,
		maxQueryLength: maxLength,
		maxUnions:      maxUnions,
		maxParenDepth:  maxDepth,
		minSafetyScore: minScore,
	}, nil
}

// Sanitize collapses whitespace runs, trims, and strips trailing semicolons.
// Validation always runs on the sanitized form, which is also the form that
// ultimately executes.
func Sanitize(sqlText string) string {
	collapsed := whitespaceRe.ReplaceAllString(sqlText, " ")
	collapsed = strings.TrimSpace(collapsed)
	for strings.HasSuffix(collapsed, ";") {
		collapsed = strings.TrimSpace(strings.TrimSuffix(collapsed, ";"))
	}
	return collapsed
}

// Validate returns nil when the statement passes the policy, or a
// *ValidationError naming the violated rule.
func (p *Policy) Validate(sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return reject(CodeInvalidInput, "query must be non-empty text", nil)
	}
	if len(trimmed) > p.maxQueryLength {
		return reject(CodeQueryTooLong, fmt.Sprintf("query exceeds %d characters", p.maxQueryLength), map[string]any{
			"length": len(trimmed),
			"limit":  p.maxQueryLength,
		})
	}

	firstToken := strings.ToLower(strings.Fields(trimmed)[0])
	if firstToken != "select" {
		return reject(CodeForbiddenCommand, fmt.Sprintf("only SELECT statements are allowed, got %q", firstToken), map[string]any{
			"command": firstToken,
		})
	}

	for _, pattern := range denyPatterns {
		if pattern.re.MatchString(trimmed) {
			return reject(CodeForbiddenPattern, fmt.Sprintf("query matches forbidden pattern %q", pattern.name), map[string]any{
				"pattern": pattern.name,
			})
		}
	}

	if offenders := p.unauthorizedTables(trimmed); len(offenders) > 0 {
		return reject(CodeUnauthorizedTable, fmt.Sprintf("unauthorized table(s): %s", strings.Join(offenders, ", ")), map[string]any{
			"tables":         offenders,
			"allowed_tables": p.allowedSorted,
		})
	}

	if fn := firstDeniedFunction(trimmed); fn != "" {
		return reject(CodeForbiddenFunction, fmt.Sprintf("function %q is not allowed", fn), map[string]any{
			"function": fn,
		})
	}

	if unions := len(unionRe.FindAllString(trimmed, -1)); unions > p.maxUnions {
		return reject(CodeTooManyUnions, fmt.Sprintf("query uses %d UNIONs, limit is %d", unions, p.maxUnions), map[string]any{
			"unions": unions,
			"limit":  p.maxUnions,
		})
	}

	opens := strings.Count(trimmed, "(")
	closes := strings.Count(trimmed, ")")
	if opens != closes {
		return reject(CodeUnbalancedParens, "query has unbalanced parentheses", map[string]any{
			"open":  opens,
			"close": closes,
		})
	}
	if opens > p.maxParenDepth {
		return reject(CodeTooDeepSubquery, fmt.Sprintf("query nesting exceeds depth %d", p.maxParenDepth), map[string]any{
			"depth": opens,
			"limit": p.maxParenDepth,
		})
	}

	return nil
}

// SafetyScore rates an accepted statement between 0 and 100. A statement that
// Validate would reject always scores 0.
func (p *Policy) SafetyScore(sqlText string) int {
	if err := p.Validate(sqlText); err != nil {
		return 0
	}

	score := 100
	if unionRe.MatchString(sqlText) {
		score -= 10
	}
	score -= 5 * strings.Count(sqlText, "(")
	if likeRe.MatchString(sqlText) {
		score -= 5
	}
	score -= 5 * len(joinRe.FindAllString(sqlText, -1))
	if aggregateRe.MatchString(sqlText) {
		score += 5
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (p *Policy) unauthorizedTables(sqlText string) []string {
	seen := map[string]struct{}{}
	var offenders []string
	for _, match := range tableRe.FindAllStringSubmatch(sqlText, -1) {
		table := strings.ToLower(strings.Trim(match[1], `"`))
		// Strip a schema qualifier; the allow-list names bare tables.
		if idx := strings.LastIndex(table, "."); idx >= 0 {
			table = table[idx+1:]
		}
		if _, ok := seen[table]; ok {
			continue
		}
		seen[table] = struct{}{}
		if _, ok := p.allowedTables[table]; !ok {
			offenders = append(offenders, table)
		}
	}
	sort.Strings(offenders)
	return offenders
}

func firstDeniedFunction(sqlText string) string {
	for _, match := range functionRe.FindAllStringSubmatch(sqlText, -1) {
		name := strings.ToLower(match[1])
		if _, ok := allowedFunctions[name]; ok {
			continue
		}
		if _, ok := deniedFunctions[name]; ok {
			return name
		}
	}
	return ""
}
