package feed

import (
	"strconv"
	"strings"
)

// ParseDurationSeconds は "MM:SS" または "HH:MM:SS" 形式の再生時間を秒数に変換する。
// それ以外の形式や数値として解釈できない場合は0を返す。
func ParseDurationSeconds(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	parts := strings.Split(text, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0
	}

	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
