package engine

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func Test_rateLimiter(t *testing.T) {
	type args struct {
		rstr string
	}
	tests := []struct {
		name    string
		args    args
		want    *rate.Limiter
		wantErr bool
	}{
		{"low", args{"LOW"}, rate.NewLimiter(rate.Limit(50000), 50000*3), false},
		{"case", args{"LoW"}, rate.NewLimiter(rate.Limit(50000), 50000*3), false},
		{"err", args{"fake"}, nil, true},
		{"unit", args{"10kb"}, rate.NewLimiter(rate.Limit(10240), 10240*3), false},
		{"unit", args{"100kb"}, rate.NewLimiter(rate.Limit(102400), 102400*3), false},
		{"unit", args{"100 kb"}, rate.NewLimiter(rate.Limit(102400), 102400*3), false},
		{"inf", args{"0"}, rate.NewLimiter(rate.Inf, 0), false},
		{"inf", args{""}, rate.NewLimiter(rate.Inf, 0), false},
		{"unlimited", args{" Unlimited "}, rate.NewLimiter(rate.Inf, 0), false},
		{"high", args{"high"}, rate.NewLimiter(rate.Limit(1500000), 1500000*3), false},
		{"overflow", args{"4gb"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rateLimiter(tt.args.rstr)
			if (err != nil) != tt.wantErr {
				t.Errorf("rateLimiter() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("rateLimiter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitConfWritesDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "torrentdesk.yaml")
	c, err := InitConf(p)
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(c.DownloadDirectory) || c.IncomingPort != 50007 {
		t.Errorf("unexpected defaults %+v", c)
	}
	if c.ProgressInterval != time.Second || c.MetadataWarnAfter != 2*time.Minute {
		t.Errorf("durations = %s %s", c.ProgressInterval, c.MetadataWarnAfter)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	again, err := InitConf(p)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c, again) {
		t.Errorf("reloaded config differs:\n%+v\n%+v", c, again)
	}
}
