package rewrite

import "regexp"

// urlPattern 匹配紧跟在引号后、以 http 开头的串，贪婪延伸到同一段内最后一个引号之前。
// 段内允许普通空格，其余空白字符（制表、换行、NBSP 等 Unicode 空白）会截断匹配。
// 子匹配 1 是 URL 本身，两端引号不属于 URL。
var urlPattern = regexp.MustCompile(`['"](http(?:[^\s\v\x{85}\p{Z}]|[ ])*)['"]`)

// Match 描述脚本中一处 URL 的位置，Start/End 为字节偏移。
type Match struct {
	URL   string
	Start int
	End   int
}

// FindURLs 按出现顺序返回 text 中所有匹配的 URL。
func FindURLs(text string) []Match {
	locs := urlPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, Match{URL: text[loc[2]:loc[3]], Start: loc[2], End: loc[3]})
	}
	return matches
}
