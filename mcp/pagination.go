package mcp

func paginate[T any](items []T, limit, offset *int) ([]T, Pagination) {
	total := len(items)
	start := 0
	if offset != nil && *offset > 0 {
		start = min(*offset, total)
	}
	end := total
	if limit != nil && *limit >= 0 {
		end = min(start+*limit, total)
	}

	var limitPtr, offsetPtr *int
	if limit != nil {
		value := *limit
		limitPtr = &value
	}
	if offset != nil {
		value := *offset
		offsetPtr = &value
	}
	return items[start:end], Pagination{Limit: limitPtr, Offset: offsetPtr, Total: total}
}
