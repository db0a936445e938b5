package githubapi

import (
	"net/url"
	"strconv"
	"strings"
)

// LastPage 解析 Link 头中 rel="last" 的 page 参数
func LastPage(link string) (int, bool) {
	for _, part := range strings.Split(link, ",") {
		sections := strings.Split(part, ";")
		if len(sections) < 2 {
			continue
		}

		isLast := false
		for _, attr := range sections[1:] {
			if strings.TrimSpace(attr) == `rel="last"` {
				isLast = true
				break
			}
		}
		if !isLast {
			continue
		}

		raw := strings.Trim(strings.TrimSpace(sections[0]), "<>")
		u, err := url.Parse(raw)
		if err != nil {
			return 0, false
		}
		page, err := strconv.Atoi(u.Query().Get("page"))
		if err != nil || page < 1 {
			return 0, false
		}
		return page, true
	}
	return 0, false
}
