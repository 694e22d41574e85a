package sweeper

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var ErrInvalidDate = errors.New("invalid calendar date")

// RetentionDir is a <root>/yyyy/mm/dd directory. The numbers are kept as
// parsed so an impossible date can still be reported.
type RetentionDir struct {
	Path  string
	Year  int
	Month int
	Day   int
}

// Date returns midnight of the directory's calendar day in loc.
func (d RetentionDir) Date(loc *time.Location) (time.Time, error) {
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, loc)
	if t.Year() != d.Year || int(t.Month()) != d.Month || t.Day() != d.Day {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d in %s", ErrInvalidDate, d.Year, d.Month, d.Day, d.Path)
	}
	return t, nil
}

type datePattern struct {
	dated   *regexp.Regexp
	partial *regexp.Regexp
}

func newDatePattern(root string) datePattern {
	quoted := regexp.QuoteMeta(root)
	return datePattern{
		dated:   regexp.MustCompile(`^(` + quoted + `/(\d{4})/(\d{2})/(\d{2}))(?:/|$)`),
		partial: regexp.MustCompile(`^` + quoted + `/(\d{4})(?:/(\d{2}))?$`),
	}
}

func (p datePattern) match(path string) (RetentionDir, bool) {
	m := p.dated.FindStringSubmatch(path)
	if m == nil {
		return RetentionDir{}, false
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	day, _ := strconv.Atoi(m[4])
	return RetentionDir{Path: m[1], Year: year, Month: month, Day: day}, true
}

// intermediate reports whether path is a year or month level directory on
// the way to a dated one.
func (p datePattern) intermediate(path string) bool {
	return p.partial.MatchString(path)
}

// expired reports whether path is a year or month level directory whose
// whole span lies before cutoff. A month of 00 or 13 is never expired.
func (p datePattern) expired(path string, cutoff time.Time) bool {
	m := p.partial.FindStringSubmatch(path)
	if m == nil {
		return false
	}
	year, _ := strconv.Atoi(m[1])
	if m[2] == "" {
		return year < cutoff.Year()
	}
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return false
	}
	end := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, cutoff.Location())
	return !end.After(cutoff)
}

// ParseDatedPath extracts the dated directory containing path. The second
// result is false when path holds no <root>/yyyy/mm/dd segment.
func ParseDatedPath(root, path string) (RetentionDir, bool) {
	return newDatePattern(root).match(path)
}

// Cutoff returns the start of now's day shifted back by windowDays. A
// directory is eligible only when its date is strictly before the cutoff.
func Cutoff(now time.Time, windowDays int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d-windowDays, 0, 0, 0, 0, now.Location())
}
