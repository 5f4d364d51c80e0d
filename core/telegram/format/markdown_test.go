package format

import "testing"

func TestEscapeMD(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain title", "plain title"},
		{"*bold* _it_ `code` [link", `\*bold\* \_it\_ ` + "\\`code\\`" + ` \[link`},
		{"", ""},
	}
	for _, tc := range cases {
		if got := EscapeMD(tc.in); got != tc.want {
			t.Errorf("EscapeMD(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
