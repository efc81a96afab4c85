package calendar

const (
	DefaultPageSize = 20
	// больше одного дня слотов за раз отдавать смысла нет
	MaxPageSize = 100
)

// Page — страница слотов (или любых других элементов) с метаданными.
type Page[T any] struct {
	Items      []T
	Page       int // с 1
	PageSize   int
	TotalPages int
	HasNext    bool
	HasPrev    bool
	Total      int
}

// Paginate режет items на страницы. Номер страницы за пределами списка
// даёт пустую страницу, pageSize ограничен MaxPageSize.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}

	total := len(items)
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)

	return Page[T]{
		Items:      items[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
		HasNext:    end < total,
		HasPrev:    page > 1,
		Total:      total,
	}
}
