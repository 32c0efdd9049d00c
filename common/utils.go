package common

import (
	"fmt"
	"runtime"
	"strings"
)

// HandleError logs err together with the caller's position and reports
// whether err was non-nil.
func HandleError(err error) (b bool) {
	if err != nil {
		// 1 is the caller, 0 would be this function
		_, fn, line, _ := runtime.Caller(1)
		Logger("error").Errorf("%s:%d %v", fn, line, err)
		b = true
	}
	return
}

func Must(err error) {
	if err != nil {
		panic(err)
	}
}

// ShortHash shortens a 40 char hex info-hash for log output.
func ShortHash(ih string) string {
	if len(ih) == 40 {
		return fmt.Sprintf("[%s..]", strings.ToLower(ih[:6]))
	}
	return ih
}
