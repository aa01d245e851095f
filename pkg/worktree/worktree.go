// Package worktree owns the shared working tree and hands out leases that
// prove a read happens against the snapshot that is actually checked out.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/codeshape/pkg/vcs"
)

// ErrStaleLease is returned when the tree moved after a lease was taken.
var ErrStaleLease = errors.New("working tree moved since lease was taken")

// ErrCheckout wraps every failed checkout of a resolved snapshot.
var ErrCheckout = errors.New("checkout failed")

// Controller is the single owner of tree mutations. Each checkout or restore
// starts a new generation and invalidates all earlier leases.
type Controller struct {
	tree   vcs.Tree
	logger *slog.Logger

	mu         sync.Mutex
	generation uint64
	current    vcs.Ref
}

// NewController wraps tree. A nil logger discards output.
func NewController(tree vcs.Tree, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Controller{tree: tree, logger: logger}
}

// Root returns the working tree directory.
func (c *Controller) Root() string {
	return c.tree.Root()
}

// Current returns the checked-out snapshot, or "" after a main-line restore.
func (c *Controller) Current() vcs.Ref {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// Checkout makes the tree match ref and returns a lease on it.
func (c *Controller) Checkout(ctx context.Context, ref vcs.Ref) (*Lease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.current = ""

	start := time.Now()

	err := c.tree.Checkout(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCheckout, ref, err)
	}

	c.current = ref

	c.logger.DebugContext(ctx, "checked out snapshot",
		"ref", ref.Short(), "generation", c.generation, "elapsed", time.Since(start))

	return &Lease{ctrl: c, ref: ref, generation: c.generation}, nil
}

// RestoreMainLine puts the tree back on the main line tip. It implements
// resolver.Restorer.
func (c *Controller) RestoreMainLine(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.current = ""

	err := c.tree.CheckoutMainLine(ctx)
	if err != nil {
		return fmt.Errorf("restore main line: %w", err)
	}

	c.logger.DebugContext(ctx, "restored main line", "generation", c.generation)

	return nil
}

func (c *Controller) verify(lease *Lease) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lease.generation != c.generation || lease.ref != c.current {
		return fmt.Errorf("%w: lease %s@%d, tree %s@%d",
			ErrStaleLease, lease.ref.Short(), lease.generation, c.current.Short(), c.generation)
	}

	return nil
}

// Lease is a borrowed view of one checkout.
type Lease struct {
	ctrl       *Controller
	ref        vcs.Ref
	generation uint64
}

// Ref returns the snapshot the lease was taken on.
func (l *Lease) Ref() vcs.Ref {
	return l.ref
}

// Verify returns ErrStaleLease when the tree no longer holds the lease's checkout.
func (l *Lease) Verify() error {
	return l.ctrl.verify(l)
}

// Path returns the absolute path of a tracked file.
func (l *Lease) Path(rel string) string {
	return filepath.Join(l.ctrl.Root(), filepath.FromSlash(rel))
}

// ListTrackedFiles lists the files of the leased snapshot selected by spec.
func (l *Lease) ListTrackedFiles(ctx context.Context, spec vcs.Pathspec) ([]string, error) {
	err := l.Verify()
	if err != nil {
		return nil, err
	}

	return l.ctrl.tree.ListTrackedFiles(ctx, spec)
}
