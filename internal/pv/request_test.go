package pv

import "testing"

func TestBuildRequest(t *testing.T) {
	cases := []struct {
		provider, field string
		rank            int
		want            string
	}{
		{"pva", "value", 0, "field(value,timeStamp)"},
		{"pva", "value", 2, "field(value,timeStamp,dimension)"},
		{"ca", "value", 2, "field(value,timeStamp)"},
		{"pva", "rbv", 1, "field(value,timeStamp,dimension,rbv)"},
		{"ca", "rbv", 0, "field(value,timeStamp,rbv)"},
		{"pva", "", 0, "field(value,timeStamp)"},
	}
	for _, c := range cases {
		got := BuildRequest(c.provider, c.field, c.rank)
		if got != c.want {
			t.Errorf("BuildRequest(%q,%q,%d) = %q, want %q", c.provider, c.field, c.rank, got, c.want)
		}
	}
}
