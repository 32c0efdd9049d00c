package engine

import (
	"github.com/boypt/torrentdesk/common"
	"github.com/sirupsen/logrus"
)

var (
	log *filteredLogger
)

// filteredLogger shortens info-hash arguments so log lines stay readable.
type filteredLogger struct {
	entry *logrus.Entry
}

func (f *filteredLogger) filteredArg(v ...interface{}) []interface{} {
	for idx, arg := range v {
		if s, ok := arg.(string); ok && len(s) == 40 {
			v[idx] = common.ShortHash(s)
		}
	}
	return v
}

func (f *filteredLogger) Println(v ...interface{}) {
	f.entry.Infoln(f.filteredArg(v...)...)
}
func (f *filteredLogger) Printf(format string, v ...interface{}) {
	f.entry.Infof(format, f.filteredArg(v...)...)
}
func (f *filteredLogger) Debugf(format string, v ...interface{}) {
	f.entry.Debugf(format, f.filteredArg(v...)...)
}
func (f *filteredLogger) Warnf(format string, v ...interface{}) {
	f.entry.Warnf(format, f.filteredArg(v...)...)
}
func (f *filteredLogger) Errorf(format string, v ...interface{}) {
	f.entry.Errorf(format, f.filteredArg(v...)...)
}

func init() {
	log = &filteredLogger{entry: common.Logger("engine")}
}
