package rights

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefinitionsBitsAreDistinctPowersOfTwo(t *testing.T) {
	for v := MinVersion; v <= MaxVersion; v++ {
		c, err := Definitions(v)
		require.NoError(t, err)

		var sum Mask
		seen := make(map[Mask]string)
		for key, def := range c {
			if key == KeyAll || key == KeyDefault {
				continue
			}
			require.Equal(t, 1, bits.OnesCount64(uint64(def.Value)), "version %d key %s", v, key)
			prev, dup := seen[def.Value]
			require.False(t, dup, "version %d: %s and %s share a bit", v, key, prev)
			seen[def.Value] = key
			sum += def.Value
		}
		require.Equal(t, c.All(), sum, "version %d", v)
	}
}

func TestDefaultRightsViewCapability(t *testing.T) {
	c1 := MustDefinitions(1)
	require.Equal(t, c1.Value(KeyOverview)|c1.Value(KeyPostComment)|c1.Value(KeyViewAll), c1.Default())

	c2 := MustDefinitions(2)
	require.Equal(t, Mask(1<<2|1<<8|1<<4), c2.Default())

	c3 := MustDefinitions(3)
	want := c3.Value(KeyOverview) | c3.Value(KeyPostComment) |
		c3.Value(KeyViewAlbums) | c3.Value(KeyViewPages) | c3.Value(KeyViewNews) |
		c3.Value(KeyViewSearch) | c3.Value(KeyViewGallery)
	require.Equal(t, want, c3.Default())
	require.False(t, c3.Default().HasAny(c3.Value(KeyViewFullImage)))
}

func TestDefinitionsUnsupportedVersion(t *testing.T) {
	for _, v := range []Version{0, 4, -1} {
		_, err := Definitions(v)
		require.ErrorIs(t, err, ErrUnsupportedVersion)
	}
}

func TestDefinitionsReturnsPrivateCopy(t *testing.T) {
	c := MustDefinitions(3)
	delete(c, KeyAdmin)

	again := MustDefinitions(3)
	require.True(t, again.Has(KeyAdmin))
	require.Equal(t, Mask(1<<30), again.Admin())
}

func TestOrderedAndVisible(t *testing.T) {
	c := MustDefinitions(2)
	ordered := c.Ordered()
	require.Equal(t, KeyAll, ordered[0].Key)
	for i := 1; i < len(ordered); i++ {
		require.GreaterOrEqual(t, uint64(ordered[i-1].Value), uint64(ordered[i].Value))
	}

	visible := c.Visible()
	require.Equal(t, KeyAdmin, visible[0].Key)
	for _, d := range visible {
		require.NotContains(t, []string{KeyNone, KeyAll, KeyDefault}, d.Key)
	}
	require.Len(t, visible, len(v2)-1)
}

func TestKeys(t *testing.T) {
	c := MustDefinitions(3)
	keys := c.Keys(c.Admin() | c.Value(KeyUpload) | c.Value(KeyNone))
	require.Equal(t, []string{KeyAdmin, KeyUpload}, keys)
}

func TestMaskHelpers(t *testing.T) {
	m := Mask(0b0110)
	require.True(t, m.Has(0b0100))
	require.False(t, m.Has(0b0101))
	require.True(t, m.HasAny(0b0101))
	require.False(t, m.HasAny(0b1001))
}
