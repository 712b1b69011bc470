package rentals

// Counts splits rentals by state at a point in time.
type Counts struct {
	Total    int64
	Active   int64
	Returned int64
	Overdue  int64
}

type BookRentalCount struct {
	BookID      int64  `json:"book_id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	RentalCount int64  `json:"rental_count"`
}

// Stats summarizes rental activity.
type Stats struct {
	TotalRentals    int64             `json:"total_rentals"`
	ActiveRentals   int64             `json:"active_rentals"`
	ReturnedRentals int64             `json:"returned_rentals"`
	OverdueRentals  int64             `json:"overdue_rentals"`
	PopularBooks    []BookRentalCount `json:"popular_books"`
}

const popularBooksLimit = 5
