// Package triggers scans message text for side-channel actions such as an
// emergency call or a maps lookup.
package triggers

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"dixi/internal/ports"
)

// Built-in patterns. Keywords cover the Spanish and Portuguese the app is
// used with.
const (
	emergencyPattern = `\b(ayuda|emergencia|socorro|auxilio|help|emergency)\b`
	mapsPattern      = `\b(?:ll[eé]vame a|c[oó]mo llego a|d[oó]nde queda|leve-me para|como chego a|take me to)\s+(.+?)[.!?]*$`
)

type compiledRule interface {
	Match(text string) (ports.Action, bool)
}

// RuleParser parses one line into a compiled rule.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (compiledRule, error)
}

// Options configures a Matcher.
type Options struct {
	// EmergencyNumber is the argument of every call action.
	EmergencyNumber string
	// RulesPath is an optional rules file appended after the built-ins.
	RulesPath string
	// DisableBuiltins drops the built-in keyword rules.
	DisableBuiltins bool
}

// Matcher finds actions in text. It implements ports.TriggerMatcher.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles the built-in rules and the optional rules file.
func NewMatcher(opts Options) (*Matcher, error) {
	parsers := defaultRuleParsers(opts.EmergencyNumber)

	var rules []compiledRule
	if !opts.DisableBuiltins {
		builtins, err := parseRules(builtinRules(opts.EmergencyNumber), parsers)
		if err != nil {
			return nil, fmt.Errorf("failed to compile built-in rules: %w", err)
		}
		rules = append(rules, builtins...)
	}

	path := strings.TrimSpace(opts.RulesPath)
	if path == "" {
		return &Matcher{rules: rules}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Matcher{rules: rules}, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	fileRules, err := parseRules(string(contents), parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}

	return &Matcher{rules: append(rules, fileRules...)}, nil
}

// Match returns at most one action per kind, in rule order.
func (m *Matcher) Match(text string) []ports.Action {
	text = strings.TrimSpace(text)
	if m == nil || text == "" {
		return nil
	}

	var actions []ports.Action
	seen := make(map[ports.ActionKind]bool)
	for _, rule := range m.rules {
		action, ok := rule.Match(text)
		if !ok || seen[action.Kind] {
			continue
		}
		seen[action.Kind] = true
		actions = append(actions, action)
	}
	return actions
}

// builtinRules renders the built-in rules in rules-file syntax. The call rule
// is left out when no number is configured.
func builtinRules(emergencyNumber string) string {
	rules := "maps /" + mapsPattern + "/\n"
	if strings.TrimSpace(emergencyNumber) != "" {
		rules = "call /" + emergencyPattern + "/\n" + rules
	}
	return rules
}

func parseRules(contents string, parsers []RuleParser) ([]compiledRule, error) {
	lines := strings.Split(contents, "\n")
	rules := make([]compiledRule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			rule, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			rules = append(rules, rule)
			parsed = true
			break
		}

		if !parsed {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
	}

	return rules, nil
}

func defaultRuleParsers(emergencyNumber string) []RuleParser {
	return []RuleParser{
		callRuleParser{number: emergencyNumber},
		mapsRuleParser{},
	}
}

type callRuleParser struct {
	number string
}

func (callRuleParser) CanParse(line string) bool {
	return hasDirective(line, ports.ActionEmergencyCall)
}

func (p callRuleParser) Parse(line string) (compiledRule, error) {
	re, err := parseRegex(strings.TrimSpace(line[len(ports.ActionEmergencyCall):]))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.number) == "" {
		return nil, errors.New("call rule needs an emergency number")
	}
	return callRule{re: re, number: p.number}, nil
}

type callRule struct {
	re     *regexp.Regexp
	number string
}

func (r callRule) Match(text string) (ports.Action, bool) {
	if !r.re.MatchString(text) {
		return ports.Action{}, false
	}
	return ports.Action{Kind: ports.ActionEmergencyCall, Argument: r.number}, true
}

type mapsRuleParser struct{}

func (mapsRuleParser) CanParse(line string) bool {
	return hasDirective(line, ports.ActionOpenMaps)
}

func (mapsRuleParser) Parse(line string) (compiledRule, error) {
	re, err := parseRegex(strings.TrimSpace(line[len(ports.ActionOpenMaps):]))
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, errors.New("maps rule needs a capture group for the address")
	}
	return mapsRule{re: re}, nil
}

type mapsRule struct {
	re *regexp.Regexp
}

func (r mapsRule) Match(text string) (ports.Action, bool) {
	groups := r.re.FindStringSubmatch(text)
	if groups == nil {
		return ports.Action{}, false
	}
	address := strings.TrimSpace(groups[1])
	if address == "" {
		return ports.Action{}, false
	}
	return ports.Action{Kind: ports.ActionOpenMaps, Argument: address}, true
}

func hasDirective(line string, kind ports.ActionKind) bool {
	rest, ok := strings.CutPrefix(line, string(kind))
	if !ok || rest == "" {
		return false
	}
	return rest[0] == ' ' || rest[0] == '\t'
}

// parseRegex reads "/pattern/flags" with any non-alphanumeric delimiter.
// Matching is case-insensitive unless the flags say otherwise.
func parseRegex(expr string) (*regexp.Regexp, error) {
	if len(expr) < 2 {
		return nil, errors.New("invalid regex rule")
	}
	delim := expr[0]
	if isAlphaNumericOrSpace(delim) {
		return nil, errors.New("regex delimiter must be non-alphanumeric")
	}

	pattern, pos, err := parseDelimited(expr, 1, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	if pattern == "" {
		return nil, errors.New("regex pattern cannot be empty")
	}
	flags := strings.TrimSpace(expr[pos:])

	ignoreCase := true
	multiLine := false
	dotAll := false
	for _, flag := range flags {
		switch flag {
		case 'i':
			ignoreCase = true
		case 'c':
			ignoreCase = false
		case 'm':
			multiLine = true
		case 's':
			dotAll = true
		case ' ':
			continue
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	prefixFlags := ""
	if ignoreCase {
		prefixFlags += "i"
	}
	if multiLine {
		prefixFlags += "m"
	}
	if dotAll {
		prefixFlags += "s"
	}
	if prefixFlags != "" {
		pattern = "(?" + prefixFlags + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		if escaped {
			builder.WriteByte(char)
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			builder.WriteByte(char)
			continue
		}
		if char == delim {
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isAlphaNumericOrSpace(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}
