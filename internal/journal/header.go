package journal

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Header returns the front matter and navigation block for date. It is a
// pure function of the calendar date (in date's location) and tags, so
// synthesizing it twice yields identical bytes.
//
// Example for 2025-10-06 with tags [diary]:
//
//	---
//	tags:
//	  - diary
//	---
//
//	[[2025]] / [[2025-Q4|Q4]] / [[2025-10|October]]
//	❮ [[2025-W40|Week 40]] | Week 41 | [[2025-W42|Week 42]] ❯
//	❮ [[2025-10-05]] | 2025-10-06 | [[2025-10-07]] ❯
//	[[2025-10-06|06]] - [[2025-10-07|07]] - ... - [[2025-10-12|12]]
func Header(date time.Time, tags []string) string {
	d := civilDate(date)
	var b strings.Builder

	// Front matter.
	b.WriteString("---\n")
	if len(tags) == 0 {
		b.WriteString("tags: []\n")
	} else {
		b.WriteString("tags:\n")
		for _, tag := range tags {
			fmt.Fprintf(&b, "  - %s\n", tag)
		}
	}
	b.WriteString("---\n\n")

	// Year / quarter / month breadcrumb.
	year := d.Year()
	quarter := (int(d.Month())-1)/3 + 1
	fmt.Fprintf(&b, "[[%d]] / [[%d-Q%d|Q%d]] / [[%s|%s]]\n",
		year, year, quarter, quarter, d.Format("2006-01"), d.Month())

	// ISO week navigation.
	_, week := d.ISOWeek()
	fmt.Fprintf(&b, "❮ %s | Week %d | %s ❯\n",
		weekLink(d.AddDate(0, 0, -7)), week, weekLink(d.AddDate(0, 0, 7)))

	// Previous / next day.
	fmt.Fprintf(&b, "❮ [[%s]] | %s | [[%s]] ❯\n",
		d.AddDate(0, 0, -1).Format(dateLayout), d.Format(dateLayout), d.AddDate(0, 0, 1).Format(dateLayout))

	// Days of the ISO week, Monday first.
	offset := (int(d.Weekday()) + 6) % 7
	monday := d.AddDate(0, 0, -offset)
	days := make([]string, 7)
	for i := range days {
		day := monday.AddDate(0, 0, i)
		days[i] = fmt.Sprintf("[[%s|%s]]", day.Format(dateLayout), day.Format("02"))
	}
	b.WriteString(strings.Join(days, " - "))
	b.WriteString("\n")

	return b.String()
}

func weekLink(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("[[%d-W%02d|Week %d]]", year, week, week)
}

// civilDate returns noon UTC on t's calendar date, so day arithmetic is
// unaffected by DST transitions in t's location.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

// Entry renders one transcript section. The leading blank line separates it
// from the header or the previous entry.
func Entry(capturedAt time.Time, filename, text string) string {
	return fmt.Sprintf("\n## %s - %s\n\n%s\n", capturedAt.Format("15:04:05"), filename, text)
}
