package dispatch

import log "github.com/sirupsen/logrus"

// LogPointer stands in for OS pointer injection by logging each action.
type LogPointer struct{}

func (LogPointer) MoveTo(x, y int) error {
	log.Debugf("pointer: move to %d, %d", x, y)
	return nil
}

func (LogPointer) Click(x, y int) error {
	log.Printf("pointer: click at %d, %d", x, y)
	return nil
}

func (LogPointer) DoubleClick(x, y int) error {
	log.Printf("pointer: double click at %d, %d", x, y)
	return nil
}

func (LogPointer) RightClick(x, y int) error {
	log.Printf("pointer: right click at %d, %d", x, y)
	return nil
}

func (LogPointer) PressKey(key string) error {
	log.Printf("pointer: press %q", key)
	return nil
}
