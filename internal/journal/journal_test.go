package journal

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/voicediary/internal/transcribe"
)

const header20251006 = `---
tags:
  - diary
---

[[2025]] / [[2025-Q4|Q4]] / [[2025-10|October]]
❮ [[2025-W40|Week 40]] | Week 41 | [[2025-W42|Week 42]] ❯
❮ [[2025-10-05]] | 2025-10-06 | [[2025-10-07]] ❯
[[2025-10-06|06]] - [[2025-10-07|07]] - [[2025-10-08|08]] - [[2025-10-09|09]] - [[2025-10-10|10]] - [[2025-10-11|11]] - [[2025-10-12|12]]
`

func TestHeader_Golden(t *testing.T) {
	date := time.Date(2025, 10, 6, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, header20251006, Header(date, []string{"diary"}))
}

func TestHeader_Idempotent(t *testing.T) {
	morning := time.Date(2025, 10, 6, 0, 0, 1, 0, time.UTC)
	night := time.Date(2025, 10, 6, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, Header(morning, []string{"diary"}), Header(night, []string{"diary"}))
}

func TestHeader_YearBoundary(t *testing.T) {
	h := Header(time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC), nil)

	assert.Contains(t, h, "tags: []\n")
	assert.Contains(t, h, "[[2024]] / [[2024-Q4|Q4]] / [[2024-12|December]]")
	assert.Contains(t, h, "❮ [[2024-W52|Week 52]] | Week 1 | [[2025-W02|Week 2]] ❯")
	assert.Contains(t, h, "❮ [[2024-12-30]] | 2024-12-31 | [[2025-01-01]] ❯")
	assert.Contains(t, h, "[[2024-12-30|30]] - [[2024-12-31|31]] - [[2025-01-01|01]]")
	assert.True(t, strings.HasSuffix(h, "[[2025-01-05|05]]\n"))
}

func TestHeader_SundayStripStartsMonday(t *testing.T) {
	h := Header(time.Date(2025, 10, 12, 12, 0, 0, 0, time.UTC), []string{"a", "b"})
	assert.Contains(t, h, "tags:\n  - a\n  - b\n")
	assert.Contains(t, h, "\n[[2025-10-06|06]] - ")
	assert.Contains(t, h, "Week 41")
}

func TestHeader_UsesDateLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	late := time.Date(2025, 10, 6, 23, 0, 0, 0, time.UTC).In(tokyo) // 2025-10-07 08:00 JST
	assert.Contains(t, Header(late, nil), "| 2025-10-07 |")
}

func TestEntry(t *testing.T) {
	at := time.Date(2025, 10, 6, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "\n## 09:05:07 - memo.ogg\n\nhello\n", Entry(at, "memo.ogg", "hello"))
}

func newTestWriter() (*Writer, afero.Fs) {
	fsys := afero.NewMemMapFs()
	return NewWriter(fsys, []string{"diary"}).WithLocation(time.UTC), fsys
}

func segment(at time.Time, name, text string) transcribe.Segment {
	return transcribe.Segment{Text: text, SourceFilename: name, CapturedAt: at}
}

func TestAppend_CreatesThenAppends(t *testing.T) {
	w, fsys := newTestWriter()
	path := "/work/transcripts/2025-10-06.md"

	require.NoError(t, w.Append(segment(time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC), "a.ogg", "first"), path))
	require.NoError(t, w.Append(segment(time.Date(2025, 10, 6, 18, 30, 15, 0, time.UTC), "b.ogg", "second"), path))

	got, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	want := header20251006 +
		"\n## 09:00:00 - a.ogg\n\nfirst\n" +
		"\n## 18:30:15 - b.ogg\n\nsecond\n"
	assert.Equal(t, want, string(got))

	entries, err := afero.ReadDir(fsys, "/work/transcripts")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestAppend_EmptyExistingFileGetsHeader(t *testing.T) {
	w, fsys := newTestWriter()
	path := "/work/transcripts/2025-10-06.md"
	require.NoError(t, afero.WriteFile(fsys, path, nil, 0o644))

	require.NoError(t, w.Append(segment(time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC), "a.ogg", "x"), path))
	got, _ := afero.ReadFile(fsys, path)
	assert.True(t, strings.HasPrefix(string(got), "---\ntags:\n"))
}

func TestAppend_SanitizesFilename(t *testing.T) {
	w, fsys := newTestWriter()
	path := "/t/2025-10-06.md"
	require.NoError(t, w.Append(segment(time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC), "x\n# evil.ogg", "body"), path))

	got, _ := afero.ReadFile(fsys, path)
	assert.Contains(t, string(got), "## 09:00:00 - x # evil.ogg\n")
	assert.NotContains(t, string(got), "\n# evil")
}

func TestAppend_RejectsEmptyText(t *testing.T) {
	w, fsys := newTestWriter()
	err := w.Append(segment(time.Now(), "a.ogg", ""), "/t/2025-10-06.md")
	assert.ErrorIs(t, err, ErrDocumentWrite)
	exists, _ := afero.Exists(fsys, "/t/2025-10-06.md")
	assert.False(t, exists)
}

func TestAppend_ReadOnlyFs(t *testing.T) {
	w := NewWriter(afero.NewReadOnlyFs(afero.NewMemMapFs()), nil)
	err := w.Append(segment(time.Now(), "a.ogg", "text"), "/t/2025-10-06.md")
	assert.ErrorIs(t, err, ErrDocumentWrite)
}

func TestAppend_ConcurrentSameDateLosesNothing(t *testing.T) {
	w, fsys := newTestWriter()
	path := "/work/transcripts/2025-10-06.md"
	base := time.Date(2025, 10, 6, 8, 0, 0, 0, time.UTC)

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := base.Add(time.Duration(i) * time.Minute)
			errs <- w.Append(segment(at, fmt.Sprintf("clip-%02d.ogg", i), fmt.Sprintf("entry %02d", i)), path)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	doc := string(got)

	assert.Equal(t, 1, strings.Count(doc, "---\ntags:"), "header written once")
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		heading := fmt.Sprintf("## %s - clip-%02d.ogg\n\nentry %02d\n", at.Format("15:04:05"), i, i)
		assert.Contains(t, doc, heading)
	}
	assert.Equal(t, n, strings.Count(doc, "\n## "))
}

func TestAppend_DifferentDatesDoNotBlock(t *testing.T) {
	w, fsys := newTestWriter()
	var wg sync.WaitGroup
	for day := 1; day <= 7; day++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			at := time.Date(2025, 10, day, 12, 0, 0, 0, time.UTC)
			assert.NoError(t, w.Append(segment(at, "a.ogg", "t"), fmt.Sprintf("/t/2025-10-%02d.md", day)))
		}(day)
	}
	wg.Wait()

	entries, err := afero.ReadDir(fsys, "/t")
	require.NoError(t, err)
	assert.Len(t, entries, 7)
	assert.Zero(t, w.locks.Len())
}
