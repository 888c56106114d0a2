package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

func frameAt(n int) *types.FrameDescriptor {
	return types.NewLumaFrame(make([]byte, 4), 2, 2, time.Duration(n)*time.Millisecond)
}

func TestOfferLatestKeepsNewestFrames(t *testing.T) {
	ch := make(chan *types.FrameDescriptor, 2)

	assert.False(t, offerLatest(ch, frameAt(1)))
	assert.False(t, offerLatest(ch, frameAt(2)))
	assert.True(t, offerLatest(ch, frameAt(3)), "full queue drops a frame")
	assert.True(t, offerLatest(ch, frameAt(4)))

	require.Len(t, ch, 2)
	assert.Equal(t, 3*time.Millisecond, (<-ch).Timestamp)
	assert.Equal(t, 4*time.Millisecond, (<-ch).Timestamp, "newest frame is queued")
}

func TestOfferLatestWithConcurrentConsumer(t *testing.T) {
	ch := make(chan *types.FrameDescriptor, 1)
	done := make(chan time.Duration)
	go func() {
		var last time.Duration
		for f := range ch {
			last = f.Timestamp
		}
		done <- last
	}()

	for i := 1; i <= 100; i++ {
		offerLatest(ch, frameAt(i))
	}
	close(ch)
	assert.Equal(t, 100*time.Millisecond, <-done)
}
