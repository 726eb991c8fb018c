package sheets

import (
	"context"

	"gradeboard/internal/core"
)

// Ports for outbound adapters.
type (
	// TableReader provides the default dataset shown before any upload.
	TableReader interface {
		ReadTable(ctx context.Context) (core.Table, error)
	}

	// SourceNamer describes where a TableReader gets its data, for logs and
	// the page footer.
	SourceNamer interface {
		SourceName() string
	}
)
