package middleware

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// AuditRoute maps a method and a path pattern to an audit action.
// Pattern segments are literals, ":name" (any one segment) or a trailing
// "*" (any remainder). Method "*" matches every method.
type AuditRoute struct {
	Method     string
	Pattern    string
	Action     string
	TargetType string
}

type compiledRoute struct {
	AuditRoute
	segments []string
	wildcard bool
	literals int
}

// Classifier derives action and target type from method and path. When
// several routes match, the one with more literal segments wins, then the
// longer pattern, then an exact method over "*".
type Classifier struct {
	prefix string
	routes []compiledRoute
}

// NewClassifier compiles routes. Patterns are relative to prefix, which is
// stripped from request paths before matching.
func NewClassifier(prefix string, routes []AuditRoute) *Classifier {
	cl := &Classifier{prefix: strings.TrimSuffix(prefix, "/")}
	for _, r := range routes {
		segs := splitPath(r.Pattern)
		cr := compiledRoute{AuditRoute: r}
		for i, s := range segs {
			if s == "*" && i == len(segs)-1 {
				cr.wildcard = true
				break
			}
			cr.segments = append(cr.segments, s)
			if !strings.HasPrefix(s, ":") {
				cr.literals++
			}
		}
		cl.routes = append(cl.routes, cr)
	}
	return cl
}

// Classify returns the best matching action and target type, or a generic
// METHOD_SEGMENT action built from the first path segment.
func (cl *Classifier) Classify(method, path string) (action, targetType string) {
	segs := splitPath(strings.TrimPrefix(path, cl.prefix))

	var best *compiledRoute
	for i := range cl.routes {
		r := &cl.routes[i]
		if !r.matches(method, segs) {
			continue
		}
		if best == nil || r.moreSpecificThan(best) {
			best = r
		}
	}
	if best != nil {
		return best.Action, best.TargetType
	}
	return genericAction(method, segs)
}

func (r *compiledRoute) matches(method string, segs []string) bool {
	if r.Method != "*" && !strings.EqualFold(r.Method, method) {
		return false
	}
	if r.wildcard {
		if len(segs) < len(r.segments) {
			return false
		}
	} else if len(segs) != len(r.segments) {
		return false
	}
	for i, s := range r.segments {
		if strings.HasPrefix(s, ":") {
			continue
		}
		if s != segs[i] {
			return false
		}
	}
	return true
}

func (r *compiledRoute) moreSpecificThan(o *compiledRoute) bool {
	if r.literals != o.literals {
		return r.literals > o.literals
	}
	if len(r.segments) != len(o.segments) {
		return len(r.segments) > len(o.segments)
	}
	if r.wildcard != o.wildcard {
		return !r.wildcard
	}
	return r.Method != "*" && o.Method == "*"
}

// MaxAuditLabel is the widest action or target type the audit_log columns
// hold. Generic labels come from the client's path and are cut to fit.
const MaxAuditLabel = 64

func genericAction(method string, segs []string) (string, string) {
	segment := "ROOT"
	targetType := ""
	if len(segs) > 0 {
		targetType = segs[0]
		segment = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToUpper(r)
			}
			return '_'
		}, segs[0])
	}
	return clampLabel(strings.ToUpper(method) + "_" + segment), clampLabel(targetType)
}

// clampLabel cuts s to MaxAuditLabel runes.
func clampLabel(s string) string {
	if utf8.RuneCountInString(s) <= MaxAuditLabel {
		return s
	}
	return string([]rune(s)[:MaxAuditLabel])
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
