package feed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"trailing slash", "https://Example.com/Feed.xml/", "https://example.com/feed.xml"},
		{"bare host", "HTTPS://example.com/", "https://example.com"},
		{"surrounding space", "  https://example.com/a  ", "https://example.com/a"},
		{"query kept", "https://example.com/feed?ID=7", "https://example.com/feed?id=7"},
		{"malformed falls back", "HTTP://%ZZ", "http://%zz"},
		{"empty fragment after slash", "https://example.com/feed.xml#/", "https://example.com/feed.xml"},
		{"bare fragment marker", "https://example.com/feed.xml#", "https://example.com/feed.xml"},
		{"fragment kept", "https://example.com/feed.xml#Top", "https://example.com/feed.xml#top"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, Normalize(tc.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://example.com//",
		"https://Example.com/Caf%C3%A9/feed.xml",
		"http://example.com/a b/",
		"HTTP://%ZZ",
		"",
		"wavlake.com/feed/abc",
		"https://example.com/feed.xml#/",
		"https://example.com/feed.xml#//",
		"https://example.com/a/#/",
		"  https://example.com/a/#/  ",
		"https://example.com/a?#/",
		"https://example.com/a?x=1#/",
		"https://example.com/#",
		"\thttps://example.com/a/  \n",
		"https://example.com/a%20/",
		"https://example.com/a%2F/",
	}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestDeriveID(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"host and path", "https://feeds.example.com/albums/my-album.xml", "feeds-example-com-albums-my-album-xml"},
		{"port dropped and escapes decoded", "https://Example.com:8443/Music/Feed%20One.xml", "example-com-music-feed-one-xml"},
		{"empty segments skipped", "https://example.com//a///b/", "example-com-a-b"},
		{"no host sanitizes raw", "not a url", "not-a-url"},
		{"parse failure sanitizes raw", "HTTP://%ZZ", "http----zz"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, DeriveID(tc.input))
		})
	}
}

func TestDeriveIDDeterministic(t *testing.T) {
	t.Parallel()

	const raw = "https://www.wavlake.com/feed/music/2b7ab215-b9b7-4cd2-a3c3-2d2e440a4d21"
	first := DeriveID(raw)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, DeriveID(raw))
	}
	require.Regexp(t, `^[a-z0-9-]+$`, first)
}

func TestValidateURL(t *testing.T) {
	t.Parallel()

	_, err := ValidateURL("https://example.com/feed.xml")
	require.NoError(t, err)

	for _, bad := range []string{"", "   ", "ftp://example.com/feed", "https://", "://nope"} {
		_, err := ValidateURL(bad)
		require.Error(t, err, "input %q", bad)
		require.True(t, errors.Is(err, ErrInvalidURL), "input %q", bad)
	}
}

func TestSameFeed(t *testing.T) {
	t.Parallel()

	require.True(t, SameFeed("https://Example.com/feed/", "https://example.com/feed"))
	require.False(t, SameFeed("https://example.com/a", "https://example.com/b"))
}

func FuzzNormalize(f *testing.F) {
	for _, seed := range []string{"https://example.com/", "HTTP://A.B/C//", "%zz", "x"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		once := Normalize(raw)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", raw, once, twice)
		}
	})
}
