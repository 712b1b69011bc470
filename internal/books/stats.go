package books

// DecadeCount is one bucket of the decade histogram.
type DecadeCount struct {
	Decade int   `json:"decade"`
	Count  int64 `json:"count"`
}

type AuthorCount struct {
	Author string `json:"author"`
	Count  int64  `json:"count"`
}

// Stats summarizes the catalog.
type Stats struct {
	TotalBooks    int64         `json:"total_books"`
	TotalCopies   int64         `json:"total_copies"`
	BooksByDecade map[int]int64 `json:"books_by_decade"`
	TopAuthors    []AuthorCount `json:"top_authors"`
}

const topAuthorsLimit = 3

func decadeMap(rows []DecadeCount) map[int]int64 {
	out := make(map[int]int64, len(rows))
	for _, row := range rows {
		out[row.Decade] += row.Count
	}
	return out
}
