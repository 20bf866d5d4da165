package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRole(t *testing.T) {
	require.True(t, RoleStandard.Valid())
	require.True(t, RoleAdmin.Valid())
	require.False(t, Role(7).Valid())

	require.Equal(t, "standard", RoleStandard.String())
	require.Equal(t, "admin", RoleAdmin.String())
	require.Equal(t, "unknown", Role(-1).String())

	require.True(t, User{Role: RoleAdmin}.IsAdmin())
	require.False(t, User{Role: RoleStandard}.IsAdmin())
}

func TestBookPatchEmpty(t *testing.T) {
	require.True(t, BookPatch{}.Empty())

	stock := 0
	require.False(t, BookPatch{Stock: &stock}.Empty())

	desc := ""
	require.False(t, BookPatch{Description: &desc}.Empty())
}
