package graph

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/zheng/sprocmap/internal/extract"
)

// Builder builds the stored procedure call tree rooted at a base file
type Builder struct {
	loader   Loader
	maxDepth int         // 0 means unlimited
	onError  func(error) // receives dropped branches
	logger   *slog.Logger
}

// Option configures the builder
type Option func(*Builder)

// WithMaxDepth limits how deep the tree may grow. Deeper branches are dropped.
func WithMaxDepth(depth int) Option {
	return func(b *Builder) {
		b.maxDepth = depth
	}
}

// WithOnError sets the callback for branch-level failures
func WithOnError(fn func(error)) Option {
	return func(b *Builder) {
		b.onError = fn
	}
}

// WithLogger sets the logger used for debug tracing
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a new call tree builder
func NewBuilder(loader Loader, opts ...Option) *Builder {
	if loader == nil {
		loader = FileLoader{}
	}
	b := &Builder{
		loader: loader,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Loader returns the loader used to read SQL text
func (b *Builder) Loader() Loader {
	return b.loader
}

// Report forwards a non-fatal error to the configured callback
func (b *Builder) Report(err error) {
	b.logger.Debug("branch dropped", "error", err)
	if b.onError != nil {
		b.onError(err)
	}
}

// Build validates rootPath and builds the tree below it. Procedures are
// resolved in the directory containing rootPath. Only a failure on the root
// itself (or cancellation) is returned; failing branches are reported and
// left out of the tree.
func (b *Builder) Build(ctx context.Context, rootPath string) (*Node, error) {
	if err := ValidateRoot(rootPath); err != nil {
		return nil, err
	}

	resolver := NewResolver(filepath.Dir(rootPath))
	return b.buildTree(ctx, resolver, rootPath, nil)
}

func (b *Builder) buildTree(ctx context.Context, r *Resolver, filePath string, parent *Node) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}
	if b.maxDepth > 0 && depth > b.maxDepth {
		return nil, &PathError{Kind: ErrDepthExceeded, Path: filePath}
	}

	if err := checkFile(filePath); err != nil {
		return nil, err
	}

	text, err := b.loader.Load(filePath)
	if err != nil {
		return nil, &PathError{Kind: ErrUnreadableFile, Path: filePath, Err: err}
	}

	node := &Node{FilePath: filePath, parent: parent, depth: depth}
	refs := extract.Extract(text)
	b.logger.Debug("loaded procedure", "file", filePath, "depth", depth,
		"calls", len(refs.Procedures), "functions", len(refs.Functions))

	for _, name := range refs.Procedures {
		candidate := name + ".sql"
		resolved, ok := r.Resolve(name)

		ancestor := node.findAncestor(candidate)
		if ancestor == nil && ok {
			ancestor = node.findAncestor(filepath.Base(resolved))
		}
		if ancestor != nil {
			node.Children = append(node.Children, &Node{
				FilePath:     candidate,
				CycleClosure: true,
				ClosesTo:     ancestor.Name(),
				parent:       node,
				depth:        depth + 1,
			})
			continue
		}

		childPath := resolved
		if !ok {
			childPath = filepath.Join(r.Dir(), candidate)
		}

		child, err := b.buildTree(ctx, r, childPath, node)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			b.Report(err)
			continue
		}
		node.Children = append(node.Children, child)
	}

	return node, nil
}
