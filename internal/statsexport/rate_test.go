package statsexport

import "testing"

func TestFormatRateScaling(t *testing.T) {
	cases := []struct {
		in   uint32
		want string
	}{
		{0, "0.00 b/s"},
		{64, "512.00 b/s"},
		{128, "1.00 kb/s"},
		{128 * 1024, "1.00 mb/s"},
	}
	for _, c := range cases {
		if got := FormatRate(c.in); got != c.want {
			t.Errorf("FormatRate(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
