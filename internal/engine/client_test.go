package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncache/internal/testutil"
)

func TestClientRegistry(t *testing.T) {
	c := NewClient(WithOrigin("o"))
	src := testutil.NewFakeSource()

	a, err := c.NewManager(Config{Name: "todos"}, src)
	require.NoError(t, err)
	_, err = c.NewManager(Config{Name: "posts"}, src)
	require.NoError(t, err)

	_, err = c.NewManager(Config{Name: "todos"}, src)
	require.ErrorIs(t, err, ErrDuplicateName)

	got, ok := c.Manager("todos")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, []string{"posts", "todos"}, c.Names())
	assert.Equal(t, "o", c.Origin())

	a.Destroy()
	assert.Equal(t, []string{"posts"}, c.Names())
	_, err = c.NewManager(Config{Name: "todos"}, src)
	require.NoError(t, err, "a destroyed manager frees its name")

	c.Close()
	assert.Empty(t, c.Names())
	_, err = c.NewManager(Config{Name: "again"}, src)
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestNewManagerValidation(t *testing.T) {
	c := NewClient()
	defer c.Close()

	_, err := c.NewManager(Config{}, testutil.NewFakeSource())
	require.Error(t, err)
	_, err = c.NewManager(Config{Name: "x"}, nil)
	require.Error(t, err)
	_, err = c.NewManager(Config{Name: "x", StaleTime: -1}, testutil.NewFakeSource())
	require.Error(t, err)
}

func TestClientDefaultsGenerateOrigin(t *testing.T) {
	a, b := NewClient(), NewClient()
	assert.NotEmpty(t, a.Origin())
	assert.NotEqual(t, a.Origin(), b.Origin())
}

func TestStatusFields(t *testing.T) {
	st := Status{CreatePending: true}
	assert.True(t, st.Pending())
	fields := st.Fields()
	assert.Equal(t, true, fields["create_pending"])
	assert.Nil(t, fields["error"])
}
