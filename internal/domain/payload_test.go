package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadDeadlinePassthrough(t *testing.T) {
	p, err := DecodePayload(EventStockOut, []byte(`{"productCode":"P1","deadlineTs":1735689600000}`))
	require.NoError(t, err)
	assert.Equal(t, float64(1735689600000), p.Extra["deadlineTs"])

	p, err = DecodePayload(EventPrediction, []byte(`{"route":"R1","deadlineTs":1735689600000}`))
	require.NoError(t, err)
	assert.Equal(t, float64(1735689600000), p.Extra["deadlineTs"])
}

func TestDecodePayloadSpecChangeDeadlineIsTyped(t *testing.T) {
	p, err := DecodePayload(EventSpecChange, []byte(`{"drawer":"C1","deadlineTs":1735689600000}`))
	require.NoError(t, err)
	_, ok := p.Extra["deadlineTs"]
	assert.False(t, ok, "spec-change deadline lives on the record, not in Extra")
}

func TestDraftFromIntakeSpecChangeDeadline(t *testing.T) {
	n, err := DraftFromIntake(EventSpecChange, []byte(`{"station":"MAD","deadlineTs":1735689600000}`))
	require.NoError(t, err)
	require.NotNil(t, n.DeadlineTs)
	assert.Equal(t, int64(1735689600000), *n.DeadlineTs)
}
