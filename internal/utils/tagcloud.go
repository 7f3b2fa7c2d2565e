package utils

import (
	"fmt"
	"html/template"
	"math"
	"sort"
	"strings"
)

var cloudClasses = []string{
	"--skip--",
	"not-popular-at-all",
	"not-very-popular",
	"somewhat-popular",
	"somewhat-more-popular",
	"popular",
	"more-than-just-popular",
	"very-popular",
	"ultra-popular",
}

// TagCount is a tag name with the number of items carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// CloudEntry is a TagCount with its popularity class.
type CloudEntry struct {
	TagCount
	Class string
}

// TagCloud buckets counts logarithmically into eight classes. Tags landing in
// bucket zero are dropped. Output is sorted by tag name.
func TagCloud(counts []TagCount) []CloudEntry {
	if len(counts) == 0 {
		return nil
	}
	logmin, logmax := math.Inf(1), math.Inf(-1)
	for _, c := range counts {
		if c.Count < 1 {
			continue
		}
		l := math.Log(float64(c.Count))
		logmin = math.Min(logmin, l)
		logmax = math.Max(logmax, l)
	}
	diff := logmax - logmin
	if diff < 0.01 {
		diff = 0.01
	}

	out := make([]CloudEntry, 0, len(counts))
	for _, c := range counts {
		if c.Count < 1 {
			continue
		}
		idx := int(8 * (math.Log(float64(c.Count)) - logmin) / diff)
		if idx > 8 {
			idx = 8
		}
		if idx == 0 {
			continue
		}
		out = append(out, CloudEntry{TagCount: c, Class: cloudClasses[idx]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// RenderTagCloud renders the cloud as space separated links.
func RenderTagCloud(entries []CloudEntry) template.HTML {
	links := make([]string, len(entries))
	for i, e := range entries {
		plural := "s"
		if e.Count == 1 {
			plural = ""
		}
		tag := template.HTMLEscapeString(e.Tag)
		links[i] = fmt.Sprintf(`<a href="/tags/%s/" title="%d item%s" class="%s">%s</a>`,
			tag, e.Count, plural, e.Class, tag)
	}
	return template.HTML(strings.Join(links, " "))
}
