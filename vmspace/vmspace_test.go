package vmspace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"eduos/defs"
)

func TestInstallLookupRemove(t *testing.T) {
	s := Mk()
	s.Install(&Entry{VAddr: 0x1000, PType: PTypeData, Status: InFile})

	e, ok := s.Lookup(0x1000)
	require.True(t, ok)
	require.Equal(t, PTypeData, e.PType)

	// Lookup with an unaligned address still resolves to its containing page.
	e2, ok := s.Lookup(0x1042)
	require.True(t, ok)
	require.Same(t, e, e2)

	s.Remove(0x1000)
	_, ok = s.Lookup(0x1000)
	require.False(t, ok)
}

func TestLoadSegmentCoversWholeRange(t *testing.T) {
	s := Mk()
	s.LoadSegment(nil, 0, 0x400000, 3*defs.PageSize+100, 50, false)

	entries := s.Entries()
	require.Len(t, entries, 4)

	for _, e := range entries {
		require.Equal(t, PTypeCode, e.PType)
		require.Equal(t, InFile, e.Status)
	}
}

func TestLoadSegmentWritableIsData(t *testing.T) {
	s := Mk()
	s.LoadSegment(nil, 0, 0x500000, defs.PageSize, 0, true)
	e, ok := s.Lookup(0x500000)
	require.True(t, ok)
	require.Equal(t, PTypeData, e.PType)
	require.True(t, e.Writable)
}
