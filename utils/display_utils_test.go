package utils

import "testing"

func TestFormatTenge(t *testing.T) {
	testCases := []struct {
		name   string
		amount int64
		want   string
	}{
		{"零", 0, "0 ₸"},
		{"三位數", 999, "999 ₸"},
		{"四位數", 1000, "1 000 ₸"},
		{"七位數", 1234567, "1 234 567 ₸"},
		{"負數", -4500, "-4 500 ₸"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatTenge(tc.amount); got != tc.want {
				t.Errorf("FormatTenge(%d) = %q, want %q", tc.amount, got, tc.want)
			}
		})
	}
}

func TestParsePriceText(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"格式化價格", "1 234 567 ₸", 1234567, false},
		{"純數字", "4500", 4500, false},
		{"帶雜訊", "цена: 12 900 ₸ в наличии", 12900, false},
		{"沒有數字", "нет в наличии", 0, true},
		{"空字串", "", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePriceText(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParsePriceText(%q) expected an error", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePriceText(%q) failed: %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ParsePriceText(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestTruncateText(t *testing.T) {
	if got := TruncateText("short", 10); got != "short" {
		t.Errorf("short text should pass through, got %q", got)
	}
	if got := TruncateText("abcdefghij", 5); got != "abcde…" {
		t.Errorf("got %q, want %q", got, "abcde…")
	}
	// 多位元組字元以 rune 截斷，不會切出半個字
	if got := TruncateText("Алматы", 3); got != "Алм…" {
		t.Errorf("got %q, want %q", got, "Алм…")
	}
}
