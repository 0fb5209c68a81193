package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/language"
)

// failingStore fails every operation, simulating an unavailable backend.
type failingStore struct{}

var errBackendDown = errors.New("backend down")

func (failingStore) Analysis(context.Context, string) (*endpoint.Analysis, error) {
	return nil, errBackendDown
}
func (failingStore) SaveAnalysis(context.Context, string, *endpoint.Analysis) error {
	return errBackendDown
}
func (failingStore) Priorities(context.Context, string) (*language.PriorityList, error) {
	return nil, errBackendDown
}
func (failingStore) SavePriorities(context.Context, string, *language.PriorityList) error {
	return errBackendDown
}

func TestDegrading_SaveNeverFailsCaller(t *testing.T) {
	d := NewDegrading(failingStore{}, nil)
	ctx := context.Background()

	require.NoError(t, d.SaveAnalysis(ctx, "ep1", sampleAnalysis()))
	require.NoError(t, d.SavePriorities(ctx, "ep1", &language.PriorityList{Tags: []string{"en"}}))
}

func TestDegrading_ReadsFallBackToMirror(t *testing.T) {
	d := NewDegrading(failingStore{}, nil)
	ctx := context.Background()

	want := sampleAnalysis()
	require.NoError(t, d.SaveAnalysis(ctx, "ep1", want))

	got, err := d.Analysis(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	p, err := d.Priorities(ctx, "ep1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, p)
}

func TestDegrading_NotFoundPassesThrough(t *testing.T) {
	d := NewDegrading(NewMemory(), nil)
	_, err := d.Analysis(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDegrading_NilPrimaryIsPureMemory(t *testing.T) {
	d := NewDegrading(nil, nil)
	ctx := context.Background()

	require.NoError(t, d.SavePriorities(ctx, "ep1", &language.PriorityList{Tags: []string{"nl"}}))
	p, err := d.Priorities(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, []string{"nl"}, p.Tags)
}

func TestDegrading_PrimaryWinsWhenHealthy(t *testing.T) {
	primary := NewMemory()
	d := NewDegrading(primary, nil)
	ctx := context.Background()

	require.NoError(t, d.SaveAnalysis(ctx, "ep1", sampleAnalysis()))

	// The write reached the primary, not just the mirror.
	got, err := primary.Analysis(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, endpoint.CapabilitySupported, got.SupportsNamedGraphs)
}
