// Package pipeline runs the medallion stages in dependency order and records
// every run in the ledger.
package pipeline

import (
	"context"
	"slices"

	"retail-medallion/internal/domain"
)

// StageFunc executes one stage and reports what it read and wrote.
type StageFunc func(ctx context.Context) (domain.StageReport, error)

// Stage is a named unit of work with the stages it depends on.
type Stage struct {
	Name      string
	DependsOn []string
	Run       StageFunc
}

// ResolveExecutionOrder computes a topological ordering of stages using
// Kahn's algorithm. Each level holds stages whose dependencies are all in
// earlier levels; names within a level keep declaration order. Unknown
// dependencies, self dependencies, duplicates and cycles are ValidationErrors.
func ResolveExecutionOrder(stages []Stage) ([][]string, error) {
	if len(stages) == 0 {
		return nil, nil
	}

	position := make(map[string]int, len(stages))
	inDegree := make(map[string]int, len(stages))
	dependents := make(map[string][]string) // dep name → stages that depend on it

	for i, s := range stages {
		if s.Name == "" {
			return nil, domain.ErrValidation("stage %d has no name", i)
		}
		if _, dup := position[s.Name]; dup {
			return nil, domain.ErrValidation("duplicate stage: %s", s.Name)
		}
		position[s.Name] = i
		inDegree[s.Name] = 0
	}

	for _, s := range stages {
		for _, dep := range s.DependsOn {
			if _, ok := position[dep]; !ok {
				return nil, domain.ErrValidation("unknown dependency: %s", dep)
			}
			if dep == s.Name {
				return nil, domain.ErrValidation("self dependency: %s", s.Name)
			}
			dependents[dep] = append(dependents[dep], s.Name)
			inDegree[s.Name]++
		}
	}

	byPosition := func(a, b string) int { return position[a] - position[b] }

	var levels [][]string
	var queue []string
	for _, s := range stages {
		if inDegree[s.Name] == 0 {
			queue = append(queue, s.Name)
		}
	}

	processed := 0
	for len(queue) > 0 {
		levels = append(levels, queue)
		processed += len(queue)

		var next []string
		for _, name := range queue {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		slices.SortFunc(next, byPosition)
		queue = next
	}

	if processed != len(stages) {
		return nil, domain.ErrValidation("cycle detected in stage dependencies")
	}
	return levels, nil
}
