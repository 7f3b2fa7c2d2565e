package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"weblog/internal/content"
	"weblog/internal/models"
)

var (
	calendarWhite  = [3]float64{255, 255, 255}
	calendarPurple = [3]float64{163, 143, 183}
)

// calendarOrder is the order kinds are listed in a day's description.
var calendarOrder = []string{
	models.KindBlogmark, models.KindEntry, models.KindQuotation,
	models.KindNote, models.KindBeat, models.KindChapter,
}

type CalendarDay struct {
	Day         time.Time
	Display     bool
	Populated   bool
	IsThisDay   bool
	Score       int
	Colour      string
	Description string
	Counts      map[string]int
}

type Calendar struct {
	Date          time.Time
	Weeks         [][]CalendarDay
	PreviousMonth *time.Time
	NextMonth     *time.Time
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// monthDates covers the month in whole Monday-to-Sunday weeks.
func monthDates(year int, month time.Month) []time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	back := (int(d.Weekday()) + 6) % 7
	d = d.AddDate(0, 0, -back)
	var out []time.Time
	for {
		out = append(out, d)
		d = d.AddDate(0, 0, 1)
		if d.Month() != month && d.Weekday() == time.Monday {
			return out
		}
	}
}

// GradientCSS interpolates white to purple; f is clamped to [0, 1].
func GradientCSS(f float64) string {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	var c [3]int
	for i := range c {
		c[i] = int((calendarPurple[i]-calendarWhite[i])*f + calendarWhite[i])
	}
	return fmt.Sprintf("rgb(%d, %d, %d)", c[0], c[1], c[2])
}

func describeDay(counts map[string]int) string {
	var bits []string
	for _, name := range calendarOrder {
		n := counts[name]
		if n == 0 {
			continue
		}
		k, _ := content.KindByName(name)
		label := k.Plural
		if n == 1 {
			label = k.Singular
		}
		bits = append(bits, fmt.Sprintf("%d %s", n, label))
	}
	return strings.Join(bits, ", ")
}

// LayoutCalendar arranges refs (already limited to date's month) into weeks.
// first is the date of the earliest entry; today decides whether a next
// month link is offered.
func LayoutCalendar(date time.Time, refs []content.Ref, first *time.Time, today time.Time) *Calendar {
	date = truncateDay(date)
	dates := monthDates(date.Year(), date.Month())
	days := make([]CalendarDay, len(dates))
	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		days[i] = CalendarDay{Day: d, Display: d.Month() == date.Month(), Counts: map[string]int{}}
		index[d] = i
	}
	for _, r := range refs {
		i, ok := index[truncateDay(r.Created)]
		if !ok {
			continue
		}
		days[i].Counts[r.Type]++
		days[i].Populated = true
	}

	maxScore := 0.001
	for i := range days {
		for name, n := range days[i].Counts {
			k, _ := content.KindByName(name)
			days[i].Score += k.Score * n
		}
		if days[i].Populated {
			days[i].Description = describeDay(days[i].Counts)
		}
		days[i].IsThisDay = days[i].Day.Equal(date)
		if float64(days[i].Score) > maxScore {
			maxScore = float64(days[i].Score)
		}
	}
	for i := range days {
		days[i].Colour = GradientCSS(float64(days[i].Score) / maxScore)
	}

	cal := &Calendar{Date: date}
	for len(days) > 0 {
		cal.Weeks = append(cal.Weeks, days[:7])
		days = days[7:]
	}
	month := firstOfMonth(date)
	if first != nil && !firstOfMonth(*first).AddDate(0, 1, 0).After(date) {
		prev := month.AddDate(0, -1, 0)
		cal.PreviousMonth = &prev
	}
	if date.Before(firstOfMonth(today)) {
		next := month.AddDate(0, 1, 0)
		cal.NextMonth = &next
	}
	return cal
}

// BuildCalendar loads the month's public items and lays them out.
func BuildCalendar(tx *gorm.DB, date time.Time) (*Calendar, error) {
	from := firstOfMonth(date)
	refs, err := content.Refs(tx, content.Selector{Where: content.Between(from, from.AddDate(0, 1, 0))}, "created", 0, 0)
	if err != nil {
		return nil, err
	}
	var first *time.Time
	var earliest models.Entry
	res := tx.Select("created").Order("created").Limit(1).Find(&earliest)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		first = &earliest.Created
	}
	return LayoutCalendar(date, refs, first, time.Now().UTC()), nil
}
