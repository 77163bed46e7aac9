package humanize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anthony-cros/hookup/internal/humanize"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{0, "0ms"},
		{999 * time.Millisecond, "999ms"},
		{time.Second, "1s"},
		{90 * time.Second, "1m"},
		{59 * time.Second, "59s"},
		{time.Minute, "1m"},
		{59 * time.Minute, "59m"},
		{60 * time.Minute, "60+m"},
		{2 * time.Hour, "60+m"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, humanize.Duration(c.in))
	}
}
