package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEntry
}

// Error renders the failure with the full trace for context.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, entry := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", entry.Seq, entry.Label())
			if entry.Detail != "" {
				fmt.Fprintf(&buf, " %s", entry.Detail)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %s", i, err.Error()))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertViewLog:
		return assertViewLog(result, a)
	case AssertViewUser:
		return assertViewUser(result, a)
	case AssertViewFilms:
		return assertViewFilms(result, a)
	case AssertShellEvents:
		return assertShellEvents(result, a)
	case AssertStorage:
		return assertStorage(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains looks for a request with the given effect whose detail
// contains a.Detail.
func assertTraceContains(trace []TraceEntry, a Assertion) error {
	for _, entry := range trace {
		if entry.Type == TraceRequest && entry.Effect == a.Effect && strings.Contains(entry.Detail, a.Detail) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: strings.TrimSpace(fmt.Sprintf("%s request %s", a.Effect, a.Detail)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that labels appear in order. Other entries may
// appear in between.
func assertTraceOrder(trace []TraceEntry, a Assertion) error {
	pos := 0
	for _, want := range a.Labels {
		found := false
		for pos < len(trace) {
			label := trace[pos].Label()
			pos++
			if label == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("labels in order: %v", a.Labels),
				Actual:   fmt.Sprintf("%s missing or out of order", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEntry, a Assertion) error {
	count := 0
	for _, entry := range trace {
		if entry.Type == TraceRequest && entry.Effect == a.Effect {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s requests", a.Count, a.Effect),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertViewLog(result *Result, a Assertion) error {
	messages := make([]string, len(result.View.Log))
	for i, entry := range result.View.Log {
		if strings.Contains(entry.Message, a.Message) {
			return nil
		}
		messages[i] = entry.Message
	}
	return &AssertionError{
		Type:     AssertViewLog,
		Expected: fmt.Sprintf("log entry containing %q", a.Message),
		Actual:   fmt.Sprintf("%q", messages),
	}
}

func assertViewUser(result *Result, a Assertion) error {
	user := result.View.UserInfo
	switch {
	case a.Name == "" && user == nil:
		return nil
	case a.Name != "" && user != nil && user.Name == a.Name:
		return nil
	}
	actual := "no user"
	if user != nil {
		actual = fmt.Sprintf("user %q", user.Name)
	}
	expected := "no user"
	if a.Name != "" {
		expected = fmt.Sprintf("user %q", a.Name)
	}
	return &AssertionError{Type: AssertViewUser, Expected: expected, Actual: actual}
}

func assertViewFilms(result *Result, a Assertion) error {
	if got := len(result.View.Films); got != a.Count {
		return &AssertionError{
			Type:     AssertViewFilms,
			Expected: fmt.Sprintf("%d films", a.Count),
			Actual:   fmt.Sprintf("%d films", got),
		}
	}
	return nil
}

func assertShellEvents(result *Result, a Assertion) error {
	urls := make([]string, len(result.ShellEvents))
	for i, ev := range result.ShellEvents {
		urls[i] = ev.URL
	}
	if !slices.Equal(urls, a.URLs) {
		return &AssertionError{
			Type:     AssertShellEvents,
			Expected: fmt.Sprintf("%q", a.URLs),
			Actual:   fmt.Sprintf("%q", urls),
		}
	}
	return nil
}

func assertStorage(result *Result, a Assertion) error {
	got, ok := result.Storage[a.Key]
	switch {
	case a.Absent && !ok:
		return nil
	case a.Absent:
		return &AssertionError{Type: AssertStorage, Expected: fmt.Sprintf("%s absent", a.Key), Actual: fmt.Sprintf("%q", got)}
	case !ok:
		return &AssertionError{Type: AssertStorage, Expected: fmt.Sprintf("%s = %q", a.Key, *a.Value), Actual: "absent"}
	case got != *a.Value:
		return &AssertionError{Type: AssertStorage, Expected: fmt.Sprintf("%s = %q", a.Key, *a.Value), Actual: fmt.Sprintf("%q", got)}
	}
	return nil
}
