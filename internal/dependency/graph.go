package dependency

import (
	"slices"

	"nightproc/internal/proctable"
)

type colour uint8

const (
	white colour = iota
	grey
	black
)

type frame struct {
	key  proctable.Key
	deps []proctable.Key
	next int
}

// Walk returns the rows reachable from roots in dependency order: every row
// appears after the rows it depends on. Dependencies that name no row in the
// table are skipped; use Dangling to find them. A loop yields a
// *DependencyCycleError and no order.
func Walk(table *proctable.Table, roots []proctable.Key) ([]proctable.Key, error) {
	state := make(map[proctable.Key]colour, table.Len())
	order := make([]proctable.Key, 0, len(roots))
	var stack []frame

	push := func(key proctable.Key) bool {
		row, ok := table.Find(key)
		if !ok {
			return false
		}
		state[key] = grey
		stack = append(stack, frame{key: key, deps: row.Dependencies})
		return true
	}

	for _, root := range roots {
		if state[root] != white || !push(root) {
			continue
		}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(top.deps) {
				state[top.key] = black
				order = append(order, top.key)
				stack = stack[:len(stack)-1]
				continue
			}
			dep := top.deps[top.next]
			top.next++
			switch state[dep] {
			case black:
			case grey:
				return nil, &DependencyCycleError{Cycle: cycleFrom(stack, dep)}
			default:
				push(dep)
			}
		}
	}
	return order, nil
}

func cycleFrom(stack []frame, dep proctable.Key) []proctable.Key {
	start := slices.IndexFunc(stack, func(f frame) bool { return f.key == dep })
	cycle := make([]proctable.Key, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		cycle = append(cycle, f.key)
	}
	return append(cycle, dep)
}

// CheckAcyclic reports the first dependency cycle in table, if any.
func CheckAcyclic(table *proctable.Table) error {
	roots := make([]proctable.Key, 0, table.Len())
	for _, row := range table.Rows() {
		roots = append(roots, row.Key())
	}
	_, err := Walk(table, roots)
	return err
}

// Dangling returns, per row key, the dependencies that name no row in table.
func Dangling(table *proctable.Table) map[proctable.Key][]proctable.Key {
	out := make(map[proctable.Key][]proctable.Key)
	for _, row := range table.Rows() {
		for _, dep := range row.Dependencies {
			if _, ok := table.Find(dep); !ok {
				out[row.Key()] = append(out[row.Key()], dep)
			}
		}
	}
	return out
}
