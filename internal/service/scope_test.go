package service

import "testing"

func TestIsObviouslyOutOfScope(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"hi", true},
		{"Hello!", true},
		{"HEY", true},
		{"good morning", true},
		{"thanks", true},
		{"Thank you!", true},
		{"bye", true},
		{"see you", true},
		{"ok", true},
		{"yes", true},
		{"Nope.", true},
		{"你好", true},
		{"谢谢！", true},
		{"再见", true},
		{"好的", true},
		{"a", true},          // 少于 3 个字符
		{"12 34", true},      // 不含字母
		{"!?!?", true},       // 不含字母
		{"hi, when do you open?", false},
		{"thanks, but my order is missing", false},
		{"what is your refund policy", false},
		{"yes I want to cancel my subscription", false},
		{"你们支持哪些支付方式", false},
	}

	for _, tc := range cases {
		if got := IsObviouslyOutOfScope(tc.message); got != tc.want {
			t.Fatalf("IsObviouslyOutOfScope(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}
