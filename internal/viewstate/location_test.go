package viewstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	cases := []struct {
		href, base, enc, it string
	}{
		{"http://localhost:13013/cellan/LR9990/1412", "http://localhost:13013/cellan", "LR9990", "1412"},
		{"http://localhost:13013/cellan/LR9990/1412/", "http://localhost:13013/cellan", "LR9990", "1412"},
		{"http://h/ABC/21?x=1#top", "http://h", "ABC", "21"},
		{"/cellan/ABC/abc", "/cellan", "ABC", "abc"},
		{"/ABC/21", "", "ABC", "21"},
		{"/a/b/VLR%2F1/7", "/a/b", "VLR/1", "7"},
	}
	for _, tc := range cases {
		t.Run(tc.href, func(t *testing.T) {
			base, enc, it, err := ParseLocation(tc.href)
			require.NoError(t, err)
			assert.Equal(t, tc.base, base)
			assert.Equal(t, tc.enc, enc)
			assert.Equal(t, tc.it, it)
		})
	}

	for _, href := range []string{"/", "/only", "http://h"} {
		_, _, _, err := ParseLocation(href)
		assert.Errorf(t, err, "href %q", href)
	}
}

func TestFormatPathRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		base string
		enc  string
		it   int
	}{
		{"http://localhost:13013/cellan", "LR9990", 1412},
		{"http://localhost:13013/cellan/", "VLR50000", 0},
		{"/cellan", "with space", 5009},
		{"", "A/B", 3},
	} {
		href := FormatPath(tc.base, tc.enc, tc.it)
		_, enc, it, err := ParseLocation(href)
		require.NoError(t, err)
		assert.Equal(t, tc.enc, enc)
		assert.Equal(t, tc.it, mustAtoi(t, it))
	}
}

func TestWithIteration(t *testing.T) {
	href, err := WithIteration("http://h/cellan/ABC/21", 5109)
	require.NoError(t, err)
	assert.Equal(t, "http://h/cellan/ABC/5109", href)

	_, err = WithIteration("http://h", 1)
	require.Error(t, err)
}

func TestMemoryHistory(t *testing.T) {
	h := NewMemoryHistory("/c/A/1")
	assert.False(t, h.Back())

	h.Push("/c/A/2")
	h.Push("/c/A/3")
	assert.Equal(t, "/c/A/3", h.Href())
	assert.False(t, h.Forward())

	require.True(t, h.Back())
	require.True(t, h.Back())
	assert.Equal(t, "/c/A/1", h.Href())

	// pushing drops the forward entries
	h.Push("/c/B/9")
	assert.Equal(t, 2, h.Len())
	assert.False(t, h.Forward())
	require.True(t, h.Back())
	assert.Equal(t, "/c/A/1", h.Href())
}
