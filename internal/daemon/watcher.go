package daemon

import "github.com/Techno-coder/pmu/internal/audio"

// watch waits for h to finish, either naturally or because it was stopped,
// and asks the core loop to advance past the song with generation gen.
func (d *Daemon) watch(h audio.Handle, gen uint64) {
	select {
	case <-h.Done():
	case <-d.done:
		return
	}

	select {
	case d.events <- Command{Kind: KindNext, gen: gen}:
	case <-d.done:
	}
}
