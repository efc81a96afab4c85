// Package booking выбирает исполнителей под слот и сериализует запись к ним.
package booking

import (
	"time"

	"github.com/Leganyst/detailer-scheduling/internal/calendar"
	"github.com/Leganyst/detailer-scheduling/internal/model"
)

// Candidate — исполнитель и его календарь на дату.
type Candidate struct {
	Detailer model.Detailer
	Calendar calendar.DayCalendar
}

type Assignment struct {
	Primary   model.Detailer
	Secondary *model.Detailer
}

// Selector — первый подходящий исполнитель без конфликтов становится основным,
// для экспресса следующий такой же становится вторым. Ранжирования нет.
type Selector struct {
	Buffer time.Duration
}

// Select возвращает false, если свободного исполнителя на слот нет.
func (s Selector) Select(candidates []Candidate, slot calendar.TimeRange, express bool) (Assignment, bool) {
	var (
		a     Assignment
		found bool
	)
	for _, c := range candidates {
		if !c.Calendar.Free(slot, s.Buffer) {
			continue
		}
		if !found {
			a.Primary = c.Detailer
			found = true
			if !express {
				break
			}
			continue
		}
		d := c.Detailer
		a.Secondary = &d
		break
	}
	return a, found
}

// FreeCount считает свободных на слот исполнителей. Для экспресса полный
// состав это два и больше.
func (s Selector) FreeCount(candidates []Candidate, slot calendar.TimeRange) int {
	n := 0
	for _, c := range candidates {
		if c.Calendar.Free(slot, s.Buffer) {
			n++
		}
	}
	return n
}
