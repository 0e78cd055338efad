package watchdog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nerrad567/solarwatch-core/internal/timeseries"
)

// Journal appends one plain-text line per watchdog event to a daily file,
// <dir>/watchdog_YYYYMMDD.log. A nil Journal discards everything.
type Journal struct {
	dir string
	loc *time.Location
}

// NewJournal creates a Journal writing under dir. The day boundary and
// line timestamps follow loc.
func NewJournal(dir string, loc *time.Location) *Journal {
	if loc == nil {
		loc = time.UTC
	}
	return &Journal{dir: dir, loc: loc}
}

// runJournal is the journal of a single run, bound to one day's file.
type runJournal struct {
	log  *zap.SugaredLogger
	file *os.File
}

func (j *Journal) open(now time.Time) (*runJournal, error) {
	if j == nil {
		return &runJournal{}, nil
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}
	name := filepath.Join(j.dir, "watchdog_"+now.In(j.loc).Format("20060102")+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) // #nosec G302 G304 -- operator log under configured dir
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	loc := j.loc
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:    "time",
		MessageKey: "msg",
		EncodeTime: func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
			pae.AppendString(t.In(loc).Format(timeseries.ISOLayout))
		},
		ConsoleSeparator: " ",
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.InfoLevel)
	return &runJournal{log: zap.New(core).Sugar(), file: f}, nil
}

func (r *runJournal) printf(format string, args ...any) {
	if r == nil || r.log == nil {
		return
	}
	r.log.Infof(format, args...)
}

func (r *runJournal) close() {
	if r == nil || r.file == nil {
		return
	}
	_ = r.log.Sync()   //nolint:errcheck // best effort
	_ = r.file.Close() //nolint:errcheck // best effort
}
