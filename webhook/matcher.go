package webhook

import (
	"regexp"
	"strings"
	"sync"
)

// Matcher decides whether an event type falls inside a webhook's
// subscription. Patterns are evaluated in order, first match wins:
//
//  1. "*" matches everything.
//  2. "access.*", "admin.*" and "system.*" match their whole category.
//  3. The pattern is tried as a full-string regular expression. Patterns
//     that fail to compile never match.
//  4. Exact string equality.
//
// Compiled expressions are cached, so repeated matching against the same
// subscription set stays cheap on the fan-out path.
type Matcher struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp // nil value marks an uncompilable pattern
}

// NewMatcher creates a matcher with an empty pattern cache.
func NewMatcher() *Matcher {
	return &Matcher{cache: make(map[string]*regexp.Regexp)}
}

// InterestedIn reports whether any of the webhook's patterns matches the
// event type. A webhook with no patterns matches nothing.
func (m *Matcher) InterestedIn(wh *Webhook, eventType string) bool {
	for _, pattern := range wh.EventTypes {
		if m.Matches(pattern, eventType) {
			return true
		}
	}
	return false
}

// Matches reports whether a single subscription pattern matches the event
// type.
func (m *Matcher) Matches(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}

	switch pattern {
	case "access.*":
		return strings.HasPrefix(eventType, "access.")
	case "admin.*":
		return strings.HasPrefix(eventType, "admin.")
	case "system.*":
		return strings.HasPrefix(eventType, "system.")
	}

	if re := m.compile(pattern); re != nil && re.MatchString(eventType) {
		return true
	}

	return pattern == eventType
}

// compile returns the cached full-string regexp for a pattern, compiling and
// caching it on first use. Uncompilable patterns are cached as nil so the
// failure is paid once.
func (m *Matcher) compile(pattern string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.cache[pattern]
	m.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
	if err != nil {
		re = nil
	}

	m.mu.Lock()
	m.cache[pattern] = re
	m.mu.Unlock()
	return re
}
