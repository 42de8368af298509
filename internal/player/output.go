package player

import (
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Output abstracts the audio device so the engine can run headless in tests.
// The real implementation is the beep speaker.
type Output interface {
	// Init prepares the device for the given sample rate. It may be called
	// again on reconnect; implementations should treat a repeated rate as a
	// no-op.
	Init(sampleRate beep.SampleRate, bufferSize int) error
	// Play starts pulling samples from s on the device's own goroutine.
	Play(s beep.Streamer)
	// Clear stops whatever is playing.
	Clear()
	// Lock and Unlock guard mutation of streamers the device is pulling from.
	Lock()
	Unlock()
}

type speakerOutput struct {
	rate beep.SampleRate
}

// NewSpeakerOutput returns an Output backed by the system audio device.
func NewSpeakerOutput() Output { return &speakerOutput{} }

func (o *speakerOutput) Init(sampleRate beep.SampleRate, bufferSize int) error {
	if o.rate == sampleRate {
		return nil
	}
	if err := speaker.Init(sampleRate, bufferSize); err != nil {
		return err
	}
	o.rate = sampleRate
	return nil
}

func (o *speakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (o *speakerOutput) Clear()               { speaker.Clear() }
func (o *speakerOutput) Lock()                { speaker.Lock() }
func (o *speakerOutput) Unlock()              { speaker.Unlock() }
