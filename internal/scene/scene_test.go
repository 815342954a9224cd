package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/cache"
)

const (
	sceneID  = "10000000-0000-0000-0000-000000000001"
	rootID   = "20000000-0000-0000-0000-000000000001"
	scriptID = "30000000-0000-0000-0000-000000000001"
	textureA = "40000000-0000-0000-0000-00000000000a"
	textureB = "40000000-0000-0000-0000-00000000000b"
	lostID   = "50000000-0000-0000-0000-000000000001"
)

type mapSource map[string]*asset.Asset

func (m mapSource) Get(_ context.Context, id string) (*asset.Asset, bool, error) {
	a, ok := m[id]
	if !ok {
		return nil, false, errors.New("not found")
	}
	return a, true, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestExtractReferences(t *testing.T) {
	data := []byte(fmt.Sprintf("texture %s\nagain %s\nUPPER %s\nzero 00000000-0000-0000-0000-000000000000",
		textureA, textureA, "40000000-0000-0000-0000-00000000000B"))
	refs := ExtractReferences(data)
	assert.Equal(t, []string{textureA, textureB}, refs)
	assert.Nil(t, ExtractReferences([]byte("no ids here")))
}

func TestManifestNormalizesAndSorts(t *testing.T) {
	m := NewManifest([]Entry{
		{ID: "B0000000-0000-0000-0000-000000000000", Name: "second", Roots: []string{" " + rootID + " ", ""}},
		{ID: "a0000000-0000-0000-0000-000000000000", Name: "first"},
		{ID: "", Name: "ignored"},
	})
	require.Equal(t, 2, m.Len())
	scenes := m.Scenes()
	assert.Equal(t, "first", scenes[0].Name)
	assert.Equal(t, "b0000000-0000-0000-0000-000000000000", scenes[1].ID)
	assert.Equal(t, []string{rootID}, m.Roots("B0000000-0000-0000-0000-000000000000"))
	assert.Empty(t, m.Roots("unknown"))
}

func TestGathererFollowsNestedReferences(t *testing.T) {
	src := mapSource{
		rootID:   {ID: rootID, Type: asset.TypeObject, Data: []byte("script=" + scriptID + " tex=" + textureA)},
		scriptID: {ID: scriptID, Type: asset.TypeLSLText, Data: []byte(`llSetTexture("` + textureB + `"); // ` + lostID + " " + rootID)},
		textureA: {ID: textureA, Type: asset.TypeTexture, Data: []byte(scriptID)},
		textureB: {ID: textureB, Type: asset.TypeTexture},
	}
	m := NewManifest([]Entry{{ID: sceneID, Roots: []string{rootID}}})
	g := NewGatherer(m, src, 0, quietLogger())

	refs, err := g.Gather(context.Background(), cache.Scene{ID: sceneID})
	require.NoError(t, err)

	for _, id := range []string{rootID, scriptID, textureA, textureB, lostID} {
		assert.Contains(t, refs, id)
	}
	assert.Len(t, refs, 5)
}

func TestGathererRespectsDepthLimit(t *testing.T) {
	chain := make([]string, 5)
	for i := range chain {
		chain[i] = fmt.Sprintf("60000000-0000-0000-0000-%012d", i+1)
	}
	src := mapSource{}
	for i, id := range chain {
		next := ""
		if i+1 < len(chain) {
			next = chain[i+1]
		}
		src[id] = &asset.Asset{ID: id, Type: asset.TypeNotecard, Data: []byte(next)}
	}
	m := NewManifest([]Entry{{ID: sceneID, Roots: []string{chain[0]}}})

	refs, err := NewGatherer(m, src, 2, quietLogger()).Gather(context.Background(), cache.Scene{ID: sceneID})
	require.NoError(t, err)
	assert.Len(t, refs, 3)
	assert.NotContains(t, refs, chain[3])
}

func TestGathererStopsOnCancelledContext(t *testing.T) {
	m := NewManifest([]Entry{{ID: sceneID, Roots: []string{rootID}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGatherer(m, mapSource{}, 0, quietLogger()).Gather(ctx, cache.Scene{ID: sceneID})
	assert.ErrorIs(t, err, context.Canceled)
}
