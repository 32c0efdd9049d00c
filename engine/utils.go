package engine

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/c2h5oh/datasize"
	"golang.org/x/time/rate"
)

func rateLimiter(rstr string) (*rate.Limiter, error) {
	var rateSize int
	rstr = strings.ToLower(strings.TrimSpace(rstr))
	switch rstr {
	case "low":
		// ~50k/s
		rateSize = 50000
	case "medium":
		// ~500k/s
		rateSize = 500000
	case "high":
		// ~1500k/s
		rateSize = 1500000
	case "unlimited", "0", "":
		return rate.NewLimiter(rate.Inf, 0), nil
	default:
		var v datasize.ByteSize
		if err := v.UnmarshalText([]byte(rstr)); err != nil {
			return nil, err
		}
		if v > 2147483647 {
			return nil, errors.New("exceeds int value")
		}
		rateSize = int(v)
	}
	return rate.NewLimiter(rate.Limit(rateSize), rateSize*3), nil
}

// applyLimit retunes a live limiter, bytesPerSec <= 0 lifts the limit.
func applyLimit(l *rate.Limiter, bytesPerSec int64) {
	if l == nil {
		return
	}
	if bytesPerSec <= 0 {
		l.SetLimit(rate.Inf)
		return
	}
	if bytesPerSec > 2147483647/3 {
		bytesPerSec = 2147483647 / 3
	}
	l.SetLimit(rate.Limit(bytesPerSec))
	l.SetBurst(int(bytesPerSec) * 3)
}

func mkdir(dirpath string) error {
	st, err := os.Stat(dirpath)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dirpath, os.ModePerm)
	}
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("path exists but is not a directory: %s", dirpath)
	}
	return nil
}

var (
	hexHashRe    = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	base32HashRe = regexp.MustCompile(`^[A-Za-z2-7]{32}$`)
)

func isInfoHash(s string) bool {
	return hexHashRe.MatchString(s) || base32HashRe.MatchString(s)
}

// lanAddress returns the first non-loopback IPv4 address of this host.
func lanAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() {
			continue
		}
		if ip4 := ipn.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
