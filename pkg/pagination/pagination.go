package pagination

const (
	// DefaultSize is the page size when none is provided.
	DefaultSize = 20
	// MaxSize caps how many rows any page may request.
	MaxSize = 100
)

// Params holds zero-based page inputs from controllers or services.
type Params struct {
	Page int
	Size int
}

// Normalize clamps page to >= 0 and size to (0, MaxSize].
func Normalize(p Params) Params {
	if p.Page < 0 {
		p.Page = 0
	}
	p.Size = NormalizeSize(p.Size)
	return p
}

// NormalizeSize enforces the default and maximum page sizes.
func NormalizeSize(size int) int {
	if size <= 0 {
		return DefaultSize
	}
	if size > MaxSize {
		return MaxSize
	}
	return size
}

// Offset is the row offset of a normalized page.
func (p Params) Offset() int {
	n := Normalize(p)
	return n.Page * n.Size
}

// Page describes one slice of a listing.
type Page[T any] struct {
	Items []T   `json:"items"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"total"`
}
