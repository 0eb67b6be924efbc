package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pitlane/paddock/pkg/types"
)

// statusLog appends one comma-separated line per installer status report
// to a per-day file in the log directory. Files roll over at midnight by
// construction: each append opens the file named for the current day.
type statusLog struct {
	dir string
	mu  sync.Mutex
}

func newStatusLog(dir string) *statusLog {
	return &statusLog{dir: dir}
}

// Append writes one report line: timestamp, remote address, hostname,
// serial, status. Appends are serialized; concurrent reports never
// interleave within a line.
func (l *statusLog) Append(remoteAddr, hostname, serial, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	path := filepath.Join(l.dir, fmt.Sprintf("deployment_%s.log", now.Format("20060102")))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open status log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s,%s,%s,%s,%s\n", now.Format(types.ISO8601), remoteAddr, hostname, serial, status)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append status log: %w", err)
	}
	return nil
}
