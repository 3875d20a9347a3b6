package async

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xceleratortech/communitiesx/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestSafeGoRunsTask(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), time.Second, "test", testLogger(), func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})

	assert.NotPanics(t, func() {
		SafeGo(context.Background(), time.Second, "panicky", testLogger(), func(ctx context.Context) error {
			defer close(done)
			panic("boom")
		})
		<-done
	})
}

func TestSafeGoSurvivesParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	done := make(chan struct{})

	SafeGo(parent, time.Second, "detached", testLogger(), func(ctx context.Context) error {
		defer close(done)
		// The task context must still be live despite the cancelled
		// parent.
		if ctx.Err() == nil {
			ran.Store(true)
		}
		return nil
	})

	<-done
	assert.True(t, ran.Load())
}

func TestSafeGoEnforcesTimeout(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), 10*time.Millisecond, "slow", testLogger(), func(ctx context.Context) error {
		defer close(done)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			t.Error("timeout never fired")
			return nil
		}
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never finished")
	}
}

func TestSafeGoNoError(t *testing.T) {
	done := make(chan struct{})

	SafeGoNoError(context.Background(), time.Second, "test", testLogger(), func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}
