package chunker

import (
	"regexp"
	"strings"
)

var (
	reSpaces  = regexp.MustCompile(`[ \t]+`)
	reNLSpace = regexp.MustCompile(` ?\n ?`)
	reNLRuns  = regexp.MustCompile(`\n{3,}`)
)

// CleanText 对一段抽取文本做一次性的空白归一化：
// 统一换行符，折叠连续空格，去掉换行两侧的空格，
// 三个以上连续换行压成一个段落分隔，并去掉首尾空白。
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = reSpaces.ReplaceAllString(s, " ")
	s = reNLSpace.ReplaceAllString(s, "\n")
	s = reNLRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
