package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfo_ContentIsCached(t *testing.T) {
	src := &fakeSource{docs: map[string]string{"mem://info.txt": "Sedes: CDMX"}}
	info, err := NewInfo(src, "mem://info.txt")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := info.Content(context.Background())
		require.NoError(t, err)
		require.Equal(t, "Sedes: CDMX", got)
	}
	require.Equal(t, 1, src.reads)

	info.Invalidate()
	src.docs["mem://info.txt"] = "Sedes: Monterrey"
	got, err := info.Content(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Sedes: Monterrey", got)
}

func TestInfo_Unavailable(t *testing.T) {
	info, err := NewInfo(&fakeSource{docs: map[string]string{}}, "mem://info.txt")
	require.NoError(t, err)
	_, err = info.Content(context.Background())
	require.ErrorIs(t, err, ErrInfoUnavailable)

	info, err = NewInfo(&fakeSource{docs: map[string]string{"mem://info.txt": ""}, readErr: errors.New("io")}, "mem://info.txt")
	require.NoError(t, err)
	_, err = info.Content(context.Background())
	require.ErrorIs(t, err, ErrInfoUnavailable)
}

func TestNewInfo_Validates(t *testing.T) {
	_, err := NewInfo(nil, "mem://info.txt")
	require.Error(t, err)
	_, err = NewInfo(&fakeSource{}, "")
	require.Error(t, err)
}
