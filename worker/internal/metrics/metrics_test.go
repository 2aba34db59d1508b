package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPollGPUFeedsGauge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		PollGPU(ctx, time.Millisecond, func() (float64, error) { return 42, nil })
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(GPUMemoryBytes) == 42
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
