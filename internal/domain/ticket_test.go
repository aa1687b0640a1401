package domain

import "testing"

func TestTicket_Validate(t *testing.T) {
	tests := []struct {
		name     string
		ticket   Ticket
		errCount int
	}{
		{name: "valid", ticket: Ticket{ID: "t-1", Price: 100, Quantity: 5}},
		{name: "sold out is valid", ticket: Ticket{ID: "t-1", Price: 100, Quantity: 0}},
		{name: "missing id", ticket: Ticket{Price: 100, Quantity: 5}, errCount: 1},
		{name: "zero price", ticket: Ticket{ID: "t-1", Quantity: 5}, errCount: 1},
		{name: "negative quantity", ticket: Ticket{ID: "t-1", Price: 100, Quantity: -1}, errCount: 1},
		{name: "all wrong", ticket: Ticket{Price: -1, Quantity: -1}, errCount: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if errs := tt.ticket.Validate(); len(errs) != tt.errCount {
				t.Errorf("expected %d errors, got %d: %v", tt.errCount, len(errs), errs)
			}
		})
	}
}

func TestTicket_Available(t *testing.T) {
	ticket := Ticket{ID: "t-1", Price: 100, Quantity: 3}

	if !ticket.Available(3) {
		t.Fatal("exact stock must be available")
	}
	if ticket.Available(4) {
		t.Fatal("qty above stock must not be available")
	}
	if ticket.Available(0) {
		t.Fatal("zero qty must not be available")
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name   string
		filter OrderFilter
		total  int
		want   Pagination
	}{
		{name: "defaults", filter: OrderFilter{}, total: 25, want: Pagination{Current: 1, Total: 25, TotalPages: 3}},
		{name: "exact pages", filter: OrderFilter{Page: 2, Limit: 5}, total: 10, want: Pagination{Current: 2, Total: 10, TotalPages: 2}},
		{name: "empty", filter: OrderFilter{Page: 1, Limit: 10}, total: 0, want: Pagination{Current: 1, Total: 0, TotalPages: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewPagination(tt.filter, tt.total); got != tt.want {
				t.Errorf("NewPagination() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOrderFilterOffset(t *testing.T) {
	f := OrderFilter{Page: 3, Limit: 10}.Normalize()
	if f.Offset() != 20 {
		t.Fatalf("expected offset 20, got %d", f.Offset())
	}
}
