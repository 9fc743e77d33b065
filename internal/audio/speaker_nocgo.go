//go:build !((linux && cgo) || windows || darwin)

package audio

// Available indicates whether audio playback is supported in this build.
// Output on linux needs cgo for ALSA.
const Available = false

// Speaker is a backend that refuses every song in builds without audio output.
type Speaker struct{}

// NewSpeaker creates a backend that always fails to load.
func NewSpeaker() *Speaker {
	return &Speaker{}
}

// Load validates that path can be decoded, then reports ErrAudioUnavailable.
func (s *Speaker) Load(path string) (Handle, error) {
	streamer, _, err := decode(path)
	if err != nil {
		return nil, err
	}
	streamer.Close()
	return nil, ErrAudioUnavailable
}
