package store

import (
	"sort"
	"strings"

	"github.com/BumpyClock/tasque/store/tsqerr"
)

// ResolveID resolves a possibly-partial task id against s. If exact is
// true, prefix matching is disabled and id must name a task exactly
// (spec.md §6 "exactId" flag). Otherwise, every task whose id has id as a
// prefix is a candidate: zero candidates is TASK_NOT_FOUND, two or more is
// TASK_ID_AMBIGUOUS (with the candidate list in Details), and exactly one
// is the resolved id.
func ResolveID(s *State, id string, exact bool) (string, error) {
	if _, ok := s.Tasks[id]; ok {
		return id, nil
	}
	if exact {
		return "", tsqerr.New(tsqerr.TaskNotFound, "task %q not found", id)
	}

	var candidates []string
	for taskID := range s.Tasks {
		if strings.HasPrefix(taskID, id) {
			candidates = append(candidates, taskID)
		}
	}
	sort.Strings(candidates)

	switch len(candidates) {
	case 0:
		return "", tsqerr.New(tsqerr.TaskNotFound, "no task matches id or prefix %q", id)
	case 1:
		return candidates[0], nil
	default:
		return "", tsqerr.New(tsqerr.TaskIDAmbiguous, "id prefix %q matches %d tasks", id, len(candidates)).
			WithDetails(map[string]any{"candidates": candidates})
	}
}
