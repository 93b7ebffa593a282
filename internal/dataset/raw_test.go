package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelativeAssociationParts(t *testing.T) {
	kind, id, err := NewRelativeAssociation("organization", "1523").Parts()
	require.NoError(t, err)
	assert.Equal(t, "organization", kind)
	assert.Equal(t, "1523", id)

	for _, bad := range []RelativeAssociation{"", "garbage", ":5", "person:"} {
		_, _, err := bad.Parts()
		assert.Error(t, err, string(bad))
	}
}

func TestMarshalPropertiesIsByteStable(t *testing.T) {
	props := map[string]string{
		"zeta":  "1",
		"alpha": "<a href=\"x\">",
		"mid":   "",
	}

	a, err := MarshalProperties(props)
	require.NoError(t, err)
	b, err := MarshalProperties(props)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, `{"alpha":"<a href=\"x\">","mid":"","zeta":"1"}`, string(a))

	back, err := UnmarshalProperties(a)
	require.NoError(t, err)
	assert.Equal(t, props, back)
}

func TestMarshalPropertiesNil(t *testing.T) {
	data, err := MarshalProperties(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	props, err := UnmarshalProperties(nil)
	require.NoError(t, err)
	assert.Empty(t, props)
}
