package controller

import (
	"strings"
	"testing"
)

// TestAdvanceAddProductDialog 走完整段對話：名稱 → 連結 → 最低價
func TestAdvanceAddProductDialog(t *testing.T) {
	dialog := &addProductDialog{step: stepName}

	reply, completed := advanceAddProductDialog(dialog, "iPhone 15")
	if completed {
		t.Fatal("dialog completed after the name step")
	}
	if !strings.Contains(reply, "ссылку") {
		t.Errorf("after name step expected a link prompt, got %q", reply)
	}
	if dialog.name != "iPhone 15" || dialog.step != stepLink {
		t.Errorf("dialog state after name step: %+v", dialog)
	}

	reply, completed = advanceAddProductDialog(dialog, "https://kaspi.kz/shop/p/iphone-15")
	if completed {
		t.Fatal("dialog completed after the link step")
	}
	if !strings.Contains(reply, "цену") {
		t.Errorf("after link step expected a price prompt, got %q", reply)
	}

	reply, completed = advanceAddProductDialog(dialog, "450 000")
	if !completed {
		t.Fatal("dialog should complete after the price step")
	}
	if reply != "" {
		t.Errorf("completed dialog should not prompt again, got %q", reply)
	}
	if dialog.minPrice == nil || *dialog.minPrice != 450000 {
		t.Errorf("min price = %v, want 450000", dialog.minPrice)
	}
	if dialog.link != "https://kaspi.kz/shop/p/iphone-15" {
		t.Errorf("link = %q", dialog.link)
	}
}

// TestAdvanceAddProductDialogSkips 連結與最低價都可用「-」略過
func TestAdvanceAddProductDialogSkips(t *testing.T) {
	dialog := &addProductDialog{step: stepName}

	advanceAddProductDialog(dialog, "Чехол")
	advanceAddProductDialog(dialog, "-")

	_, completed := advanceAddProductDialog(dialog, "-")
	if !completed {
		t.Fatal("dialog should complete with both optional fields skipped")
	}
	if dialog.link != "" {
		t.Errorf("link = %q, want empty after skip", dialog.link)
	}
	if dialog.minPrice != nil {
		t.Errorf("min price = %v, want nil after skip", dialog.minPrice)
	}
}

// TestAdvanceAddProductDialogBadPrice 讀不懂的價格停在原步驟重問
func TestAdvanceAddProductDialogBadPrice(t *testing.T) {
	dialog := &addProductDialog{step: stepMinPrice, name: "Чехол"}

	reply, completed := advanceAddProductDialog(dialog, "дорого")
	if completed {
		t.Fatal("dialog must not complete on an unparseable price")
	}
	if !strings.Contains(reply, "Не понял цену") {
		t.Errorf("expected a retry prompt, got %q", reply)
	}
	if dialog.step != stepMinPrice || dialog.minPrice != nil {
		t.Errorf("dialog state changed on bad input: %+v", dialog)
	}

	if _, completed = advanceAddProductDialog(dialog, "5000"); !completed {
		t.Fatal("dialog should complete once a valid price arrives")
	}
	if dialog.minPrice == nil || *dialog.minPrice != 5000 {
		t.Errorf("min price = %v, want 5000", dialog.minPrice)
	}
}

// TestParseDeleteCommand 「удалить N」/「delete N」解析成 1-based 序號
func TestParseDeleteCommand(t *testing.T) {
	testCases := []struct {
		command string
		wantIdx int
		wantOK  bool
	}{
		{"удалить 3", 3, true},
		{"delete 1", 1, true},
		{"удалить 0", 0, false},
		{"удалить -2", 0, false},
		{"удалить три", 0, false},
		{"удалить", 0, false},
		{"удалить 1 2", 0, false},
		{"заказы", 0, false},
	}

	for _, tc := range testCases {
		idx, ok := parseDeleteCommand(tc.command)
		if idx != tc.wantIdx || ok != tc.wantOK {
			t.Errorf("parseDeleteCommand(%q) = (%d, %v), want (%d, %v)", tc.command, idx, ok, tc.wantIdx, tc.wantOK)
		}
	}
}
