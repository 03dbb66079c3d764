package utils

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// FormatTenge 將以堅戈為單位的整數金額格式化為人類可讀字串，
// 千分位以空格分隔，例如 1234567 -> "1 234 567 ₸"
func FormatTenge(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(d)
	}

	out := b.String() + " ₸"
	if negative {
		out = "-" + out
	}
	return out
}

// ParsePriceText 從爬蟲抓到的價格文字解出整數金額，
// 例如 "1 234 567 ₸" -> 1234567。文字中沒有任何數字時回傳錯誤。
func ParsePriceText(text string) (int64, error) {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("no digits in price text: %q", text)
	}
	return strconv.ParseInt(b.String(), 10, 64)
}

// TruncateText 截斷過長的文字並加上省略號，避免錯誤內文撐爆聊天訊息
func TruncateText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
