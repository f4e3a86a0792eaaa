package catalog

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"upload-column/internal/column"
)

func TestRegistries(t *testing.T) {
	kinds, err := Registries(column.WithFs(afero.NewMemMapFs()), column.WithDefaults(column.Config{RootDir: "/srv/public"}))
	require.NoError(t, err)
	require.Equal(t, []string{"avatar"}, kinds["user"].Columns())
	require.Equal(t, []string{"attachment", "cover"}, kinds["document"].Columns())

	avatar, ok := kinds["user"].Options("avatar")
	require.True(t, ok)
	require.Equal(t, "/srv/public/images", avatar.RootDir)
	require.Len(t, avatar.Versions, 2)
	require.True(t, avatar.ValidateIntegrity)

	require.Equal(t, []string{"/srv/public/images/tmp", "/srv/public/tmp"}, TmpDirs(kinds))
}
