package application_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/realvista/backend/pkg/application"
)

type stubModule struct {
	name string
	err  error
	hits *int
}

func (m stubModule) Register(app application.Application) error {
	*m.hits++
	return m.err
}

func (m stubModule) Name() string {
	return m.name
}

func TestLoad(t *testing.T) {
	app := application.New(&application.ApplicationOptions{})
	hits := 0

	err := application.Load(app,
		stubModule{name: "first", hits: &hits},
		stubModule{name: "second", hits: &hits},
	)
	require.NoError(t, err)
	require.Equal(t, 2, hits)
}

func TestLoadFailsFast(t *testing.T) {
	app := application.New(&application.ApplicationOptions{})
	hits := 0
	boom := errors.New("boom")

	err := application.Load(app,
		stubModule{name: "broken", err: boom, hits: &hits},
		stubModule{name: "never-reached", hits: &hits},
	)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "broken")
	require.Equal(t, 1, hits)
}
