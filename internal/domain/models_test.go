package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityPrefersCaseID(t *testing.T) {
	record := &CaseRecord{CaseID: "100001", PropertyAddress: "123 Main St", FilingDate: "03/15/2024"}
	id, ok := record.Identity()
	require.True(t, ok)
	assert.Equal(t, "100001", id)
}

func TestFallbackIdentityNormalizesAddress(t *testing.T) {
	record := &CaseRecord{
		PropertyAddress: "  123   Main St  ",
		FilingDate:      "03/15/2024",
	}
	id, ok := record.Identity()
	require.True(t, ok)
	assert.Equal(t, "fb:123 MAIN ST|03/15/2024", id)

	// No identifier and no fallback fields means the record is dropped.
	empty := &CaseRecord{PropertyAddress: "123 Main St"}
	_, ok = empty.Identity()
	assert.False(t, ok)
}
