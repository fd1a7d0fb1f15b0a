package htmlfix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDoctypeCount(t *testing.T) {
	assert.Equal(t, 0, DoctypeCount("<p>x</p>"))
	assert.Equal(t, 1, DoctypeCount("<!DOCTYPE html><html></html>"))
	assert.Equal(t, 2, DoctypeCount("<!doctype html><html></html><!DocType html>"))
}

func TestStripDuplicateHeaders(t *testing.T) {
	a := "<!DOCTYPE html>\n<html><body>first</body></html>"
	b := "<!DOCTYPE html>\n<html><body>second and longer</body></html>"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"untouched without duplicates", a, a},
		{"longest complete document wins", a + "\n" + b, b + "\n"},
		{"first wins on equal length", a + a, a + "\n"},
		{
			name: "incomplete segment strips in place",
			in:   "<!DOCTYPE html><html><head><!DOCTYPE html></head><body>x</body></html>",
			want: "<!DOCTYPE html><html><head></head><body>x</body></html>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripDuplicateHeaders(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, DoctypeCount(got), 1)
			assert.Equal(t, got, StripDuplicateHeaders(got))
		})
	}
}
