package domain

import (
	"sort"
	"time"
)

// TimelineKind — тип записи в истории заказа.
type TimelineKind string

const (
	TimelineOrderCreated   TimelineKind = "OrderCreated"
	TimelineOrderPending   TimelineKind = "OrderPending"
	TimelineOrderCompleted TimelineKind = "OrderCompleted"
	TimelineOrderCancelled TimelineKind = "OrderCancelled"
	TimelineOrderRemoved   TimelineKind = "OrderRemoved"
)

// TimelineEvent — одна запись истории заказа.
type TimelineEvent struct {
	OrderID  string
	Type     TimelineKind
	Reason   string
	Occurred time.Time
}

// SortTimeline упорядочивает записи по времени; записи с одинаковым временем
// сохраняют порядок добавления.
func SortTimeline(events []TimelineEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
}
