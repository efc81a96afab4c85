package calendar

import (
	"iter"
	"slices"
	"time"
)

// GenerateSlots лениво нарезает окно на кандидаты фиксированной длины.
// Первый слот начинается в window.Start, следующий через duration+buffer.
// Генерация останавливается, как только конец слота выходит за window.End.
// Последовательность можно обходить повторно.
func GenerateSlots(window TimeRange, duration, buffer time.Duration) iter.Seq[TimeRange] {
	return func(yield func(TimeRange) bool) {
		if duration <= 0 || buffer < 0 {
			return
		}
		step := duration + buffer
		for start := window.Start; ; start = start.Add(step) {
			end := start.Add(duration)
			if end.After(window.End) {
				return
			}
			if !yield(TimeRange{Start: start, End: end}) {
				return
			}
		}
	}
}

// Occupied — время, которое запись занимает в календаре вместе с дорогой после неё.
func Occupied(booking TimeRange, buffer time.Duration) TimeRange {
	return TimeRange{Start: booking.Start, End: booking.End.Add(buffer)}
}

// Conflicts сообщает, пересекается ли кандидат [s, e) хотя бы с одной записью
// [b_s, b_e + buffer). Буфер добавляется только после записи.
func Conflicts(candidate TimeRange, bookings []TimeRange, buffer time.Duration) bool {
	occupied := make([]TimeRange, 0, len(bookings))
	for _, b := range bookings {
		occupied = append(occupied, Occupied(b, buffer))
	}
	has, _ := HasOverlap(candidate, occupied, false)
	return has
}

// Covers — интервал целиком попадает в одно из рабочих окон.
func Covers(windows []TimeRange, tr TimeRange) bool {
	for _, w := range windows {
		if w.Contains(tr) {
			return true
		}
	}
	return false
}

// FreeSegments вычитает из рабочих окон занятые интервалы записей (с буфером).
// Результат отсортирован по началу.
func FreeSegments(windows, bookings []TimeRange, buffer time.Duration) []TimeRange {
	occupied := make([]TimeRange, 0, len(bookings))
	for _, b := range bookings {
		occupied = append(occupied, Occupied(b, buffer))
	}
	sortByStart(occupied)

	var free []TimeRange
	for _, w := range windows {
		cur := w.Start
		for _, o := range occupied {
			if !o.End.After(cur) || !o.Start.Before(w.End) {
				continue
			}
			if o.Start.After(cur) {
				free = append(free, TimeRange{Start: cur, End: o.Start})
			}
			cur = o.End
			if !cur.Before(w.End) {
				break
			}
		}
		if cur.Before(w.End) {
			free = append(free, TimeRange{Start: cur, End: w.End})
		}
	}

	sortByStart(free)
	return free
}

// DayCalendar — рабочие окна исполнителя на дату и его живые записи.
type DayCalendar struct {
	Windows  []TimeRange
	Bookings []TimeRange
}

// Free — исполнитель свободен на интервале и интервал попадает в рабочее окно.
func (c DayCalendar) Free(tr TimeRange, buffer time.Duration) bool {
	return Covers(c.Windows, tr) && !Conflicts(tr, c.Bookings, buffer)
}

// Candidates генерирует слоты по свободным отрезкам календаря и отбрасывает
// всё, что пересекается с записями. Сетка заново выравнивается после каждой записи.
func (c DayCalendar) Candidates(duration, buffer time.Duration) iter.Seq[TimeRange] {
	return func(yield func(TimeRange) bool) {
		for _, seg := range FreeSegments(c.Windows, c.Bookings, buffer) {
			for slot := range GenerateSlots(seg, duration, buffer) {
				if Conflicts(slot, c.Bookings, buffer) {
					continue
				}
				if !yield(slot) {
					return
				}
			}
		}
	}
}

// Union объединяет последовательности слотов, убирает дубли по (start, end)
// и сортирует по началу.
func Union(seqs ...iter.Seq[TimeRange]) []TimeRange {
	type key struct{ start, end int64 }

	seen := make(map[key]struct{})
	var out []TimeRange
	for _, seq := range seqs {
		for tr := range seq {
			k := key{tr.Start.UnixNano(), tr.End.UnixNano()}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, tr)
		}
	}

	sortByStart(out)
	return out
}

func sortByStart(ranges []TimeRange) {
	slices.SortFunc(ranges, func(a, b TimeRange) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})
}
