package catalog

import "context"

// Reader resolves modules and content items.
type Reader interface {
	// GetModule returns shared.ErrModuleNotFound for unknown ids.
	GetModule(ctx context.Context, moduleID string) (*Module, error)

	// GetContent returns shared.ErrContentNotFound for unknown ids.
	GetContent(ctx context.Context, contentID string) (*Content, error)

	// ListContents returns the module's current content set ordered by position.
	ListContents(ctx context.Context, moduleID string) ([]Content, error)
}

// Writer stores catalog records pushed by the authoring side.
type Writer interface {
	SaveModule(ctx context.Context, m *Module) error
	SaveContent(ctx context.Context, c *Content) error
}
