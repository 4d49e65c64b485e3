package book

import (
	"context"
	"sync"

	"readalong/companion/internal/workflow"
)

// Navigator walks one book's pages for a single reading session. It
// implements the workflow navigation collaborator; a nil page signals that
// there is no page in the requested direction.
type Navigator struct {
	mu   sync.Mutex
	book *Book
	idx  int
}

// NewNavigator positions the cursor on the first page.
func NewNavigator(b *Book) *Navigator {
	return &Navigator{book: b, idx: 0}
}

// Current returns the page under the cursor.
func (n *Navigator) Current() (*workflow.PageRef, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.refLocked(n.idx)
}

func (n *Navigator) Next(ctx context.Context) (*workflow.PageRef, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.idx+1 >= len(n.book.Pages) {
		return nil, false, nil
	}
	n.idx++
	ref, last := n.refLocked(n.idx)
	return ref, last, nil
}

func (n *Navigator) Previous(ctx context.Context) (*workflow.PageRef, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.idx == 0 {
		return nil, false, nil
	}
	n.idx--
	ref, last := n.refLocked(n.idx)
	return ref, last, nil
}

func (n *Navigator) refLocked(idx int) (*workflow.PageRef, bool) {
	if idx < 0 || idx >= len(n.book.Pages) {
		return nil, false
	}
	p := n.book.Pages[idx]
	return &workflow.PageRef{
		ID:    p.ID,
		Index: p.Index,
		Total: len(n.book.Pages),
	}, idx == len(n.book.Pages)-1
}
