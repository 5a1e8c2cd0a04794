package cleanup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treesweep/internal/fsops"
	"treesweep/internal/scan"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("sweep: %w", &Error{Kind: KindFileRemoval, Path: "/t/a", Err: fs.ErrNotExist})

	assert.True(t, errors.Is(err, ErrFileRemoval))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, errors.Is(err, ErrDirRemoval))
	assert.False(t, errors.Is(err, ErrEnumeration))
}

func TestErrorMessagesNamePathAndCause(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindEnumeration, "processing directory entry /t/x: boom"},
		{KindPermission, "making /t/x write-accessible: boom"},
		{KindFileRemoval, "removing file /t/x: boom"},
		{KindDirRemoval, "removing directory /t/x: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			e := &Error{Kind: tt.kind, Path: "/t/x", Err: errors.New("boom")}
			assert.Equal(t, tt.want, e.Error())
		})
	}
}

func TestParseDirPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    DirPolicy
		wantErr bool
	}{
		{"", DirWarn, false},
		{"warn", DirWarn, false},
		{" WARN ", DirWarn, false},
		{"abort", DirAbort, false},
		{"Abort", DirAbort, false},
		{"ignore", DirWarn, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirPolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "warn", DirWarn.String())
	assert.Equal(t, "abort", DirAbort.String())
}

func TestBucketerOrdersDeepestFirst(t *testing.T) {
	var b bucketer
	b.add(1, "/r/b")
	b.add(0, "/r")
	b.add(2, "/r/b/c")
	b.add(1, "/r/a")

	got := b.ordered()

	require.Len(t, got, 3)
	assert.Equal(t, Bucket{Depth: 2, Paths: []string{"/r/b/c"}}, got[0])
	assert.Equal(t, Bucket{Depth: 1, Paths: []string{"/r/a", "/r/b"}}, got[1])
	assert.Equal(t, Bucket{Depth: 0, Paths: []string{"/r"}}, got[2])
}

func TestReadOnly(t *testing.T) {
	assert.True(t, readOnly(0o444))
	assert.True(t, readOnly(0o555|fs.ModeDir))
	assert.False(t, readOnly(0o644))
	assert.False(t, readOnly(0o200))
}

func TestNormalizeAddsOwnerWriteOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o444))
	require.NoError(t, os.Chmod(path, 0o444))

	fixed, err := normalize(fsops.OSFS{}, scan.Entry{Path: path, Kind: scan.File, Mode: 0o444})
	require.NoError(t, err)
	assert.True(t, fixed)

	info, err := os.Lstat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o644), info.Mode().Perm())
}
