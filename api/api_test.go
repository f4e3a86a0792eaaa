package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	doc, err := Load()
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
	require.Empty(t, doc.Servers)
	require.NotNil(t, doc.Paths.Find("/records/{id}/attachments/{attr}"))
}
