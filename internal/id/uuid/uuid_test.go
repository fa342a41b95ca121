package uuid

import (
	"testing"

	googleuuid "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDsAreVersion7AndSortable(t *testing.T) {
	t.Parallel()

	gen := New()
	ids := make([]string, 0, 50)
	for range 50 {
		id, err := gen.NewID()
		require.NoError(t, err)
		parsed, err := googleuuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, googleuuid.Version(7), parsed.Version())
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}
