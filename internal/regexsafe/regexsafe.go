// Package regexsafe validates administrator-supplied patterns before they are
// compiled and matched against attacker-controlled chat text.
package regexsafe

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
)

const MaxPatternLength = 200

var (
	ErrEmpty        = errors.New("pattern is empty")
	ErrTooLong      = fmt.Errorf("pattern exceeds %d characters", MaxPatternLength)
	ErrStackedQuant = errors.New("pattern stacks quantifiers")
	ErrNestedQuant  = errors.New("pattern nests an unbounded quantifier inside a repeated group")
	ErrUnbalanced   = errors.New("pattern has unbalanced brackets")
)

// Validate checks pattern for length abuse and the structural shapes that cause
// catastrophic backtracking: stacked quantifiers (a**, a+*, a{2}+) and an
// unbounded quantifier applied to a group that itself repeats without bound,
// e.g. (a+)+ or (\w+\s?)*.
func Validate(pattern string) error {
	if pattern == "" {
		return ErrEmpty
	}
	if utf8.RuneCountInString(pattern) > MaxPatternLength {
		return ErrTooLong
	}
	return scan(pattern)
}

type group struct {
	unbounded bool
}

func scan(pattern string) error {
	src := []rune(pattern)
	var stack []group
	// lastQuant is set when the previous token was a quantifier; lazyUsed when
	// that quantifier already carried its lazy '?' suffix.
	lastQuant, lazyUsed := false, false
	// closedUnbounded is set right after ')' of a group containing an
	// unbounded quantifier.
	closedUnbounded := false

	markUnbounded := func() {
		if len(stack) > 0 {
			stack[len(stack)-1].unbounded = true
		}
	}

	for i := 0; i < len(src); i++ {
		r := src[i]
		switch r {
		case '\\':
			i++
			lastQuant, lazyUsed, closedUnbounded = false, false, false
		case '[':
			end := classEnd(src, i)
			if end < 0 {
				return ErrUnbalanced
			}
			i = end
			lastQuant, lazyUsed, closedUnbounded = false, false, false
		case '(':
			stack = append(stack, group{})
			lastQuant, lazyUsed, closedUnbounded = false, false, false
		case ')':
			if len(stack) == 0 {
				return ErrUnbalanced
			}
			closed := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if closed.unbounded {
				markUnbounded()
			}
			lastQuant, lazyUsed = false, false
			closedUnbounded = closed.unbounded
		case '*', '+', '?', '{':
			unbounded := r == '*' || r == '+'
			next := i
			if r == '{' {
				end, open, ok := braceEnd(src, i)
				if !ok {
					// a literal brace, not a repetition
					lastQuant, lazyUsed, closedUnbounded = false, false, false
					continue
				}
				unbounded = open
				next = end
			}
			if lastQuant {
				if r == '?' && !lazyUsed {
					lazyUsed = true
					continue
				}
				return ErrStackedQuant
			}
			if unbounded && closedUnbounded {
				return ErrNestedQuant
			}
			if unbounded {
				markUnbounded()
			}
			i = next
			lastQuant, lazyUsed, closedUnbounded = true, false, false
		default:
			lastQuant, lazyUsed, closedUnbounded = false, false, false
		}
	}
	if len(stack) != 0 {
		return ErrUnbalanced
	}
	return nil
}

// classEnd returns the index of the ']' closing the class opened at start.
func classEnd(src []rune, start int) int {
	i := start + 1
	if i < len(src) && src[i] == '^' {
		i++
	}
	if i < len(src) && src[i] == ']' {
		i++
	}
	for ; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case ']':
			return i
		}
	}
	return -1
}

// braceEnd parses a {n}, {n,} or {n,m} repetition starting at start. open is
// true for the unbounded {n,} form.
func braceEnd(src []rune, start int) (end int, open bool, ok bool) {
	digits, comma, after := 0, false, 0
	for i := start + 1; i < len(src); i++ {
		switch r := src[i]; {
		case r >= '0' && r <= '9':
			if comma {
				after++
			} else {
				digits++
			}
		case r == ',' && !comma:
			comma = true
		case r == '}':
			if digits == 0 {
				return 0, false, false
			}
			return i, comma && after == 0, true
		default:
			return 0, false, false
		}
	}
	return 0, false, false
}

// Cache validates, compiles and memoizes patterns by their source string.
// Rejected patterns are remembered so they are logged once and never compiled.
type Cache struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
	rejected map[string]error
	logger   *zap.Logger
}

func NewCache(logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		compiled: make(map[string]*regexp.Regexp),
		rejected: make(map[string]error),
		logger:   logger,
	}
}

// Get returns the compiled, case-insensitive form of pattern. A false result
// means the pattern was rejected and must be treated as never matching.
func (c *Cache) Get(pattern string) (*regexp.Regexp, bool) {
	c.mu.RLock()
	re, ok := c.compiled[pattern]
	_, rejected := c.rejected[pattern]
	c.mu.RUnlock()
	if ok {
		return re, true
	}
	if rejected {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.compiled[pattern]; ok {
		return re, true
	}
	if _, rejected := c.rejected[pattern]; rejected {
		return nil, false
	}

	if err := Validate(pattern); err != nil {
		c.rejected[pattern] = err
		c.logger.Warn("unsafe pattern rejected", zap.String("pattern", pattern), zap.Error(err))
		return nil, false
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		c.rejected[pattern] = err
		c.logger.Warn("invalid pattern rejected", zap.String("pattern", pattern), zap.Error(err))
		return nil, false
	}
	c.compiled[pattern] = re
	return re, true
}

// MatchString reports whether text matches pattern. Rejected patterns never match.
func (c *Cache) MatchString(pattern, text string) bool {
	re, ok := c.Get(pattern)
	if !ok {
		return false
	}
	return re.MatchString(text)
}

// CompileAll returns the compiled forms of the accepted patterns, in order.
func (c *Cache) CompileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if re, ok := c.Get(pattern); ok {
			out = append(out, re)
		}
	}
	return out
}
