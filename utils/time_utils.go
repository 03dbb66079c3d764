package utils

import "time"

// EpochMillis 轉換為 Kaspi API 使用的 epoch 毫秒
func EpochMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// FromEpochMillis 從 epoch 毫秒還原時間，0 視為零值
func FromEpochMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}

// LookbackFrom 回傳往回推 days 天的時間下界
func LookbackFrom(now time.Time, days int) time.Time {
	if days <= 0 {
		days = 1
	}
	return now.AddDate(0, 0, -days)
}
