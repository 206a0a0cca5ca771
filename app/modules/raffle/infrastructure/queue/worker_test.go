package rafflequeue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
)

type fakeUpkeeper struct {
	calls int
	id    raffletypes.RequestID
	err   error
}

func (f *fakeUpkeeper) Upkeep(context.Context) (raffletypes.RequestID, error) {
	f.calls++
	return f.id, f.err
}

func TestUpkeepWorker_Work(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := &river.Job[UpkeepJob]{JobRow: &rivertype.JobRow{ID: 11, Attempt: 1}, Args: UpkeepJob{RequestedBy: "schedule"}}

	tests := []struct {
		name    string
		up      *fakeUpkeeper
		wantErr bool
	}{
		{name: "nothing to do", up: &fakeUpkeeper{}},
		{name: "locked round", up: &fakeUpkeeper{id: 3}},
		{name: "failure is retried", up: &fakeUpkeeper{err: errors.New("coordinator down")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewUpkeepWorker(tt.up, logger).Work(context.Background(), job)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, tt.up.calls)
		})
	}
}

func TestUpkeepJob_Kind(t *testing.T) {
	assert.Equal(t, "raffle_upkeep", UpkeepJob{}.Kind())
}
