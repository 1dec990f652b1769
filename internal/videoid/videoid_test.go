package videoid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/woktalk/recipe-engine/internal/recipe"
)

func TestNormalizeExtractsKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  recipe.Key
	}{
		{"watch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"short URL", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"embed URL", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch URL with extra params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"bare ID", "dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"ID with underscore and dash", "a_b-c_d-e_f", "a_b-c_d-e_f"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Normalize(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "not a video", "https://example.com/", "short"} {
		_, err := Normalize(input)
		require.ErrorIs(t, err, recipe.ErrInvalidKey, "input %q", input)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	first, err := Normalize("https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	second, err := Normalize(first.String())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestValid(t *testing.T) {
	t.Parallel()

	require.True(t, Valid("dQw4w9WgXcQ"))
	require.False(t, Valid("dQw4w9WgXcQ&t=1"))
	require.False(t, Valid("short"))
}
