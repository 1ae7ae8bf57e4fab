package leads

import "context"

// ListFilter narrows the admin lead listing.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository defines the interface for lead storage
type Repository interface {
	// ListExportable returns every lead in an exportable status,
	// most recently updated first.
	ListExportable(ctx context.Context) ([]Lead, error)
	List(ctx context.Context, filter ListFilter) ([]Lead, error)
	GetByID(ctx context.Context, id int64) (*Lead, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
}
