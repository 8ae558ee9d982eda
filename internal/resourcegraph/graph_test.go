package resourcegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simforge/simforge/pkg/simerrors"
)

func TestGraph_FinalizeOrdersProducersBeforeDependents(t *testing.T) {
	g := New()
	require.NoError(t, g.Declare(Resource{Kind: Column, Name: "age"}, "demography", nil))
	require.NoError(t, g.Declare(Resource{Kind: Column, Name: "entrance_time"}, "demography", nil))
	require.NoError(t, g.Declare(Resource{Kind: Pipeline, Name: "mortality_rate"}, "mortality",
		[]Resource{{Kind: Column, Name: "age"}}))

	order, err := g.Finalize()
	require.NoError(t, err)

	indexOf := func(r Resource) int {
		for i, x := range order {
			if x == r {
				return i
			}
		}
		return -1
	}

	assert.Less(t, indexOf(Resource{Kind: Column, Name: "age"}), indexOf(Resource{Kind: Pipeline, Name: "mortality_rate"}))
}

func TestGraph_DeclareTwiceForSameResourceFails(t *testing.T) {
	g := New()
	require.NoError(t, g.Declare(Resource{Kind: Column, Name: "age"}, "demography", nil))

	err := g.Declare(Resource{Kind: Column, Name: "age"}, "other", nil)
	require.Error(t, err)

	var contractErr *simerrors.ComponentContractError
	require.ErrorAs(t, err, &contractErr)
}

func TestGraph_UnresolvedDependencyFails(t *testing.T) {
	g := New()
	require.NoError(t, g.Declare(Resource{Kind: Pipeline, Name: "mortality_rate"}, "mortality",
		[]Resource{{Kind: Column, Name: "age"}}))

	_, err := g.Finalize()
	require.Error(t, err)

	var unresolved *simerrors.UnresolvedDependencyError
	require.ErrorAs(t, err, &unresolved)
}

func TestGraph_CycleDetected(t *testing.T) {
	g := New()
	require.NoError(t, g.Declare(Resource{Kind: Pipeline, Name: "a"}, "x", []Resource{{Kind: Pipeline, Name: "b"}}))
	require.NoError(t, g.Declare(Resource{Kind: Pipeline, Name: "b"}, "y", []Resource{{Kind: Pipeline, Name: "a"}}))

	_, err := g.Finalize()
	require.Error(t, err)

	var cyclic *simerrors.CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)
	assert.NotEmpty(t, cyclic.Path)
}

func TestGraph_FinalizeWithNoDependenciesSucceeds(t *testing.T) {
	g := New()
	require.NoError(t, g.Declare(Resource{Kind: Stream, Name: "mortality"}, "mortality", nil))

	order, err := g.Finalize()
	require.NoError(t, err)
	assert.Len(t, order, 1)
}
