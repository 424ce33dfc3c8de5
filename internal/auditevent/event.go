// Package auditevent extracts the small set of semantic fields the
// anomaly-detection core reads from an otherwise loosely-typed audit
// event, and renders them into the normalised State triple used by the
// Markov engine.
package auditevent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Event is one raw audit record as decoded from the upstream's JSON.
// The upstream schema is not under our control, so the only contract
// we rely on is "a JSON object"; every field access below degrades to
// a documented fallback rather than panicking or erroring.
type Event map[string]any

// ID returns the event's event_id, if present and a non-empty string.
func (e Event) ID() (string, bool) {
	v, ok := stringField(e, "event_id")
	return v, ok
}

// CorrelationKey returns the trace-grouping key for this event, following
// the priority order meta.correlation_id -> correlation_id -> request_id.
// The second bool is false when none of those fields yield a usable key,
// meaning the event must be dropped.
func (e Event) CorrelationKey() (string, bool) {
	if meta, ok := e["meta"].(map[string]any); ok {
		if v, ok := stringField(Event(meta), "correlation_id"); ok {
			return v, true
		}
	}
	if v, ok := stringField(e, "correlation_id"); ok {
		return v, true
	}
	if v, ok := stringField(e, "request_id"); ok {
		return v, true
	}
	return "", false
}

// RawTimestamp returns the event's ts field as a comparable sort key
// string. Numeric epochs are rendered so that lexical ordering of the
// formatted value still sorts numerically for any reasonable epoch
// range, matching the spec's "(ts, event_id)" ascending sort.
func (e Event) RawTimestamp() string {
	switch v := e["ts"].(type) {
	case string:
		return v
	case float64:
		return formatEpoch(v)
	case int:
		return formatEpoch(float64(v))
	case int64:
		return formatEpoch(float64(v))
	default:
		return ""
	}
}

// formatEpoch renders a numeric epoch with fixed-width zero padding so
// that string comparison agrees with numeric comparison across the
// range of plausible Unix timestamps (any non-negative epoch below
// 10^13 seconds, the 13 integer digits the format leaves).
func formatEpoch(v float64) string {
	return fmt.Sprintf("%020.6f", v)
}

// ParsedTimestamp parses ts as either an ISO-8601 timestamp (trailing
// "Z" treated as "+00:00") or a numeric epoch. Returns false when the
// value is absent or unparseable by either form.
func (e Event) ParsedTimestamp() (time.Time, bool) {
	switch v := e["ts"].(type) {
	case string:
		return parseISO(v)
	case float64:
		return time.Unix(0, int64(v*float64(time.Second))).UTC(), true
	case int:
		return time.Unix(int64(v), 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

func parseISO(s string) (time.Time, bool) {
	normalised := strings.TrimSuffix(s, "Z")
	if normalised != s {
		normalised += "+00:00"
	}
	layouts := []string{
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05-07:00",
		time.RFC3339Nano,
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, normalised); err == nil {
			return t, true
		}
	}
	// Fall back to a bare numeric string (epoch encoded as text).
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(0, int64(f*float64(time.Second))).UTC(), true
	}
	return time.Time{}, false
}

// Actor classifies the event's principal into "service", "user", or
// whatever explicit type a mapping-shaped principal declares.
func (e Event) Actor() string {
	principal, present := e["principal"]
	if !present {
		return "unknown"
	}
	switch v := principal.(type) {
	case map[string]any:
		if t, ok := stringField(Event(v), "type"); ok {
			return t
		}
		return "unknown"
	case string:
		if v == "gateway" || v == "audit-service" {
			return "service"
		}
		return "user"
	default:
		return "unknown"
	}
}

var idSegment = regexp.MustCompile(`^(?:[0-9]+|[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}|[0-9a-fA-F]{24,32})$`)

// normalizePath strips numeric and UUID-shaped path segments so that
// per-entity identifiers never leak into a State string and inflate
// the Markov engine's state count.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg != "" && idSegment.MatchString(seg) {
			segments[i] = "."
		}
	}
	return strings.Join(segments, "/")
}

// Action returns the normalised action name for this event: the
// explicit action field, falling back to method, falling back to
// http.path (normalised and mapped through the known path aliases).
func (e Event) Action() string {
	if v, ok := stringField(e, "action"); ok {
		return v
	}
	if v, ok := stringField(e, "method"); ok {
		return v
	}
	if http, ok := e["http"].(map[string]any); ok {
		if path, ok := stringField(Event(http), "path"); ok {
			normalised := normalizePath(path)
			if strings.Contains(normalised, "/api/events") {
				return "emit_audit"
			}
			if strings.Contains(normalised, "/mcp/tools") {
				return "tool_use"
			}
			return normalised
		}
	}
	return "unknown"
}

// Outcome returns the event's outcome field, defaulting to "OK".
func (e Event) Outcome() string {
	if v, ok := stringField(e, "outcome"); ok {
		return v
	}
	return "OK"
}

// State renders the actor:action:outcome triple the Markov engine
// operates on.
func (e Event) State() string {
	return e.Actor() + ":" + e.Action() + ":" + e.Outcome()
}

// stringField reads a string-valued field, treating a missing key, a
// non-string value, or an empty string all as "absent" per the spec's
// fallback semantics.
func stringField(e Event, key string) (string, bool) {
	v, ok := e[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
