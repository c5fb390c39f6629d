package model

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// History id prefixes, one per producer.
const (
	PrefixAction = "action"
	PrefixLLM    = "llm"
	PrefixUser   = "user"
	PrefixImage  = "image"
	PrefixSpeech = "speech"
)

// UserRequestRef is the sentinel reference to the original goal text.
const UserRequestRef = "user_request"

// ErrHistoryRefNotFound is returned when a history reference cannot be resolved.
var ErrHistoryRefNotFound = errors.New("history reference not found")

// lastIDStamp keeps the timestamp component strictly increasing so ids stay
// unique within the process even when two are minted in the same millisecond.
var lastIDStamp atomic.Int64

// NewHistoryID returns a process-unique id of the form "{prefix}-{step}-{millis}".
func NewHistoryID(prefix string, step int) string {
	return newHistoryID(prefix, step, time.Now())
}

func newHistoryID(prefix string, step int, now time.Time) string {
	for {
		last := lastIDStamp.Load()
		ms := now.UnixMilli()
		if ms <= last {
			ms = last + 1
		}
		if lastIDStamp.CompareAndSwap(last, ms) {
			return fmt.Sprintf("%s-%d-%d", prefix, step, ms)
		}
	}
}

// History is the ordered, append-only record of a run.
type History []HistoryEntry

// Append adds an entry, copying its parameters so later writes by the
// producer cannot alter the recorded entry.
func (h *History) Append(e HistoryEntry) {
	if e.Parameters != nil {
		e.Parameters = maps.Clone(e.Parameters)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	*h = append(*h, e)
}

// Counts returns the number of successful and failed entries.
func (h History) Counts() (succeeded, failed int) {
	for _, e := range h {
		if e.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Last returns the most recent entry, if any.
func (h History) Last() (HistoryEntry, bool) {
	if len(h) == 0 {
		return HistoryEntry{}, false
	}
	return h[len(h)-1], true
}

// HasOperation reports whether any entry invoked provider/operation.
func (h History) HasOperation(provider, operation string) bool {
	for _, e := range h {
		if e.ProviderName == provider && e.OperationName == operation {
			return true
		}
	}
	return false
}

// Lookup resolves a single id or a comma-separated list of ids.
//
// Each id is matched exactly first. Failing that, the "{step}-{timestamp}"
// tail is matched regardless of prefix, and last of all any id containing
// (or contained in) the reference wins. The two fallbacks are heuristic and
// can pick an unintended entry when ids are short or numerically close.
func (h History) Lookup(ref string) ([]HistoryEntry, error) {
	ids := SplitRefs(ref)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty reference", ErrHistoryRefNotFound)
	}

	entries := make([]HistoryEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := h.find(id)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrHistoryRefNotFound, id)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SplitRefs splits a comma-separated reference list, dropping blanks.
func SplitRefs(ref string) []string {
	var ids []string
	for _, part := range strings.Split(ref, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

var idTailPattern = regexp.MustCompile(`(\d+)-(\d+)$`)

func (h History) find(id string) (HistoryEntry, bool) {
	for _, e := range h {
		if e.HistoryID == id {
			return e, true
		}
	}

	if m := idTailPattern.FindStringSubmatch(id); m != nil {
		tail := "-" + m[1] + "-" + m[2]
		for _, e := range h {
			if strings.HasSuffix(e.HistoryID, tail) {
				return e, true
			}
		}
	}

	for _, e := range h {
		if e.HistoryID == "" {
			continue
		}
		if strings.Contains(e.HistoryID, id) || strings.Contains(id, e.HistoryID) {
			return e, true
		}
	}
	return HistoryEntry{}, false
}
