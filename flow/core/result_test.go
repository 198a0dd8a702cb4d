package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultStates(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name         string
		res          Result[int]
		wantValue    bool
		wantError    bool
		wantSentinel bool
		wantEnd      bool
	}{
		{name: "ok", res: Ok(1), wantValue: true},
		{name: "err", res: Err[int](boom), wantError: true},
		{name: "end of stream", res: EndOfStream[int](), wantSentinel: true, wantEnd: true},
		{name: "custom sentinel", res: Sentinel[int](errors.New("page")), wantSentinel: true},
		{name: "nil-error sentinel", res: Sentinel[int](nil), wantSentinel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantValue, tt.res.IsValue())
			assert.Equal(t, tt.wantError, tt.res.IsError())
			assert.Equal(t, tt.wantSentinel, tt.res.IsSentinel())
			assert.Equal(t, tt.wantEnd, tt.res.IsEnd())
		})
	}
}

func TestResultAccessors(t *testing.T) {
	boom := errors.New("boom")

	assert.Equal(t, 7, Ok(7).Value())
	assert.NoError(t, Ok(7).Error())

	assert.ErrorIs(t, Err[int](boom).Error(), boom)
	assert.NoError(t, Err[int](boom).Sentinel())

	end := EndOfStream[string]()
	assert.NoError(t, end.Error())
	assert.ErrorIs(t, end.Sentinel(), ErrEndOfStream)

	v, err := NewResult(3, boom, false).Unwrap()
	assert.Equal(t, 3, v)
	assert.ErrorIs(t, err, boom)
}

func TestRetype(t *testing.T) {
	boom := errors.New("boom")

	res := Retype[string](Err[int](boom))
	assert.True(t, res.IsError())
	assert.ErrorIs(t, res.Error(), boom)

	end := Retype[string](EndOfStream[int]())
	assert.True(t, end.IsEnd())
}
