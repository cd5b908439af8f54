package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name     string
	success  bool
	duration time.Duration
	calls    int
}

func (r *recorder) OnCommandComplete(name string, success bool, duration time.Duration) {
	r.name, r.success, r.duration = name, success, duration
	r.calls++
}

func TestRun(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err         error
		wantSuccess bool
	}{
		"success": {wantSuccess: true},
		"failure": {err: errors.New("boom"), wantSuccess: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rec := &recorder{}
			err := Run(rec, "stagetrail status", func() error { return tt.err })
			assert.Equal(t, tt.err, err)
			require.Equal(t, 1, rec.calls)
			assert.Equal(t, "stagetrail status", rec.name)
			assert.Equal(t, tt.wantSuccess, rec.success)
			assert.GreaterOrEqual(t, rec.duration, time.Duration(0))
		})
	}
}

func TestRun_NilHandler(t *testing.T) {
	t.Parallel()

	called := false
	require.NoError(t, Run(nil, "x", func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}
