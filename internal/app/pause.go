package app

import (
	"bufio"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_mouse/internal/dispatch"
)

// WatchPause reads commands line by line from r: "q" pauses pointer output
// and "e" resumes it. It returns when r is exhausted.
func WatchPause(r io.Reader, gate *dispatch.Gate) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "q":
			gate.Pause()
			log.Printf("receiver: paused, type e to resume")
		case "e":
			gate.Resume()
			log.Printf("receiver: resumed")
		}
	}
}
