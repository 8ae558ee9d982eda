package mortality

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simforge/simforge/internal/simcontext"
)

// withPopulationSize wraps Component to also declare population.size,
// since the bundled component itself only owns the mortality.* leaf —
// population sizing belongs to whatever demography component a real
// model would bring; the smoke test stands in for that component here.
type withPopulationSize struct {
	*Component
	size int
}

func (w withPopulationSize) ConfigurationDefaults() map[string]any {
	defaults := w.Component.ConfigurationDefaults()
	defaults["population"] = map[string]any{"size": w.size}
	return defaults
}

func TestMortality_TrivialRunProducesBoundedDeathCount(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * 24 * time.Hour)

	comp := withPopulationSize{Component: New(1.0 / 365.0), size: 2000}

	ctx := simcontext.New(simcontext.Options{
		Start:      start,
		End:        end,
		GlobalStep: 24 * time.Hour,
		Seed:       0,
		Components: []simcontext.Component{comp},
	})

	report, err := ctx.Run(context.Background())
	require.NoError(t, err)

	table, ok := report["deaths"]
	require.True(t, ok)
	require.NotEmpty(t, table.Rows)

	deaths := table.Rows[0][0].(float64)
	assert.GreaterOrEqual(t, deaths, 0.0)
	assert.Less(t, deaths, float64(comp.size))
}

func TestMortality_BitIdenticalAcrossRunsWithSameSeed(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * 24 * time.Hour)

	run := func() float64 {
		comp := withPopulationSize{Component: New(1.0 / 365.0), size: 500}
		ctx := simcontext.New(simcontext.Options{
			Start: start, End: end, GlobalStep: 24 * time.Hour, Seed: 7,
			Components: []simcontext.Component{comp},
		})
		report, err := ctx.Run(context.Background())
		require.NoError(t, err)
		return report["deaths"].Rows[0][0].(float64)
	}

	assert.Equal(t, run(), run())
}
