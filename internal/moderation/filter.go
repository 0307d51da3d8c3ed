package moderation

import (
	"html"
	"strings"
)

var DefaultBlocklist = []string{"ban", "spam", "abuse"}

// Filter 对文本做大小写不敏感的子串匹配。
type Filter struct {
	words []string
}

func NewFilter(words ...string) *Filter {
	f := &Filter{words: make([]string, 0, len(words))}
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			f.words = append(f.words, w)
		}
	}
	return f
}

func (f *Filter) Blocked(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range f.words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Sanitize 转义 HTML 特殊字符，所有自由文本在存储和广播前都经过它。
func Sanitize(s string) string {
	return html.EscapeString(s)
}
