package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"contextnexus/internal/core"
)

type fakeConnector struct {
	id string
}

func (f fakeConnector) Info() Info {
	return Info{ID: f.id, Capabilities: map[string]struct{}{"chat": {}}}
}
func (f fakeConnector) Send(context.Context, core.Prompt, SendOptions) (string, error) {
	return "ok:" + f.id, nil
}
func (f fakeConnector) Stream(context.Context, core.Prompt, SendOptions) (<-chan StreamChunk, error) {
	return nil, nil
}

func TestRegisterFirstBecomesDefault(t *testing.T) {
	r := New()
	r.Register("m1", fakeConnector{id: "m1"})
	r.Register("m2", fakeConnector{id: "m2"})

	id, c, err := r.Default()
	require.NoError(t, err)
	require.Equal(t, "m1", id)
	require.Equal(t, "m1", c.Info().ID)
}

func TestLookupNotFound(t *testing.T) {
	r := New()
	_, err := r.Lookup("missing")
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.ErrorOf(err))
}

func TestEnumerateSorted(t *testing.T) {
	r := New()
	r.Register("zeta", fakeConnector{id: "zeta"})
	r.Register("alpha", fakeConnector{id: "alpha"})
	require.Equal(t, []string{"alpha", "zeta"}, r.Enumerate())
}

func TestSetDefaultRequiresRegistered(t *testing.T) {
	r := New()
	r.Register("m1", fakeConnector{id: "m1"})
	require.Error(t, r.SetDefault("m2"))
	require.NoError(t, r.SetDefault("m1"))
	id, _, _ := r.Default()
	require.Equal(t, "m1", id)
}
