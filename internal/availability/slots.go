package availability

import (
	"time"

	"github.com/campushq/roombook/internal/model"
)

// SlotDuration is the fixed granularity of the day view: 48 slots per
// UTC day.
const SlotDuration = 30 * time.Minute

// TimeSlot is one bookable unit of a room's day view. When unavailable it
// carries the id and purpose of the first booking found covering it.
type TimeSlot struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	IsAvailable bool      `json:"is_available"`
	BookingID   string    `json:"booking_id,omitempty"`
	Purpose     string    `json:"purpose,omitempty"`
}

// DayBounds returns the UTC calendar day [00:00, next day 00:00) containing
// date.
func DayBounds(date time.Time) (time.Time, time.Time) {
	d := date.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// FetchBounds returns the widened window used to load candidate bookings
// for a day view: one day of slack on each side so bookings recorded
// against a neighbouring UTC date by a skewed client still show up. The
// slots themselves are always generated against the precise UTC day.
func FetchBounds(date time.Time) (time.Time, time.Time) {
	dayStart, dayEnd := DayBounds(date)
	return dayStart.AddDate(0, 0, -1), dayEnd.AddDate(0, 0, 1)
}

// DayTimeSlots partitions the UTC day containing date into contiguous
// 30-minute slots and marks each against the given bookings. Bookings
// outside the day are ignored; the fetch window is the caller's concern
// (see FetchBounds). The result is deterministic for a fixed snapshot.
func DayTimeSlots(date time.Time, bookings []model.Booking) []TimeSlot {
	dayStart, dayEnd := DayBounds(date)

	slots := make([]TimeSlot, 0, int(dayEnd.Sub(dayStart)/SlotDuration))
	for t := dayStart; t.Before(dayEnd); t = t.Add(SlotDuration) {
		slot := TimeSlot{
			Start:       t,
			End:         t.Add(SlotDuration),
			IsAvailable: true,
		}
		for _, b := range bookings {
			if Overlaps(slot.Start, slot.End, b.StartAt, b.EndAt) {
				slot.IsAvailable = false
				slot.BookingID = b.ID
				slot.Purpose = b.Purpose
				break
			}
		}
		slots = append(slots, slot)
	}
	return slots
}
