package playback

import (
	"os/exec"
	"sync"

	"github.com/skratchdot/open-golang/open"
)

// Media is what gets handed to a cast device.
type Media struct {
	URL       string
	Title     string
	Type      MediaType
	StartTime float64
}

// Status is an asynchronous report from an open device.
type Status struct {
	CurrentTime  float64
	Disconnected bool
	Err          error
}

// Device is one cast target. Callbacks may arrive on any goroutine.
type Device interface {
	Name() string
	// Open connects and starts playing m, then calls done exactly once.
	Open(m Media, done func(error))
	Play() error
	Pause() error
	Seek(t float64) error
	Stop() error
	// SetStatusHandler receives position updates, disconnects and errors
	// while the device is open.
	SetStatusHandler(func(Status))
}

// Driver discovers devices of one type.
type Driver interface {
	Type() DeviceType
	Devices() []Device
}

type Registry struct {
	mu      sync.RWMutex
	drivers map[DeviceType]Driver
}

func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: map[DeviceType]Driver{}}
	for _, d := range drivers {
		r.Register(d)
	}
	return r
}

// Register adds d, replacing any driver of the same type.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Type()] = d
}

func (r *Registry) Driver(t DeviceType) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[t]
	return d, ok
}

// Launcher runs an external player and blocks until it exits.
type Launcher interface {
	Run(playerPath, url string) error
}

// ExecLauncher starts playerPath with the stream URL, or hands the URL to
// the system default handler when no player is configured.
type ExecLauncher struct{}

func (ExecLauncher) Run(playerPath, url string) error {
	if playerPath == "" {
		return open.Run(url)
	}
	return exec.Command(playerPath, url).Run()
}
