package processtree

import (
	"github.com/core-tools/hsu-proctree/pkg/errors"
)

type stackItem struct {
	pid int
	// ready is set once the node's children were pushed above it
	ready bool
}

// StopTree stops pid together with all of its descendants.
//
// An unknown fence is resolved once from the root's creation time and the
// same fence judges every descendant at every depth. Sibling subtrees are
// processed one after another in discovery order. A failed kill does not
// stop the traversal; all failures are returned together at the end.
//
// With ParentFirst the children of a node are discovered only after the node
// was stopped, so children already reparented or gone by then are not found.
func (t *Terminator) StopTree(pid int, policy StopPolicy, fence Fence) error {
	if policy.Order == "" {
		policy.Order = ChildrenFirst
	}
	fence = t.resolveFence(pid, fence)

	t.logger.Infof("Stopping process tree %d, order: %s, timeout: %v", pid, policy.Order, policy.Timeout)

	failures := errors.NewErrorCollection()
	visited := make(map[int]bool)
	stack := []stackItem{{pid: pid}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch {
		case policy.Order == ParentFirst:
			if visited[item.pid] {
				continue
			}
			visited[item.pid] = true

			failures.Add(t.stopNode(item.pid, policy))
			stack = pushReversed(stack, t.Children(item.pid, fence))

		case item.ready:
			failures.Add(t.stopNode(item.pid, policy))

		default:
			if visited[item.pid] {
				continue
			}
			visited[item.pid] = true

			stack = append(stack, stackItem{pid: item.pid, ready: true})
			stack = pushReversed(stack, t.Children(item.pid, fence))
		}
	}

	if failures.HasErrors() {
		t.logger.Errorf("Process tree %d stopped with %d failure(s)", pid, len(failures.Errors()))
		return failures.ToError()
	}
	t.logger.Infof("Process tree %d stopped", pid)
	return nil
}

// StopTreeWithDefaults stops the tree rooted at pid with the default policy
func (t *Terminator) StopTreeWithDefaults(pid int) error {
	return t.StopTree(pid, t.policy, Fence{})
}

func (t *Terminator) stopNode(pid int, policy StopPolicy) error {
	err := t.StopProcess(pid, policy.Timeout)
	if err != nil {
		t.logger.Errorf("Failed to stop process %d in tree: %v", pid, err)
	}
	return err
}

// pushReversed pushes children so that the first discovered is popped first
func pushReversed(stack []stackItem, children []int) []stackItem {
	for i := len(children) - 1; i >= 0; i-- {
		stack = append(stack, stackItem{pid: children[i]})
	}
	return stack
}
