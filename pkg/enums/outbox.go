package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateRental   OutboxAggregateType = "rental"
	AggregateBook     OutboxAggregateType = "book"
	AggregateBorrower OutboxAggregateType = "borrower"
)

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateRental, AggregateBook, AggregateBorrower:
		return true
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names what happened to the aggregate.
type OutboxEventType string

const (
	EventRentalCreated   OutboxEventType = "rental_created"
	EventRentalReturned  OutboxEventType = "rental_returned"
	EventBookDeleted     OutboxEventType = "book_deleted"
	EventBorrowerDeleted OutboxEventType = "borrower_deleted"
)

// Each event type belongs to exactly one aggregate.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventRentalCreated:   AggregateRental,
	EventRentalReturned:  AggregateRental,
	EventBookDeleted:     AggregateBook,
	EventBorrowerDeleted: AggregateBorrower,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e is emitted for, or "" when e is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
