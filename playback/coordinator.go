package playback

import (
	"errors"
	"fmt"
)

var (
	ErrNoDriver      = errors.New("no cast driver for device type")
	ErrNoMenu        = errors.New("cast menu is not open")
	ErrNoSuchDevice  = errors.New("no such device")
	ErrNothingToPlay = errors.New("nothing is playing")
)

// Coordinator drives the Playing state. It is not safe for concurrent use:
// every method, and every function handed to post, must run on the same
// event loop. Device and player callbacks are marshalled through post.
type Coordinator struct {
	playing  *Playing
	reg      *Registry
	launcher Launcher
	post     func(func())
	onError  func(msg string)

	menu   []Device
	active Device
	// gen invalidates callbacks from devices or players we already left
	gen int
}

func NewCoordinator(p *Playing, reg *Registry, launcher Launcher, post func(func()), onError func(string)) *Coordinator {
	if p.Location == "" {
		p.Reset()
	}
	return &Coordinator{
		playing:  p,
		reg:      reg,
		launcher: launcher,
		post:     post,
		onError:  onError,
	}
}

func (c *Coordinator) Playing() *Playing { return c.playing }

// Open starts local playback of a served file.
func (c *Coordinator) Open(infoHash string, index int, url string, t MediaType) {
	c.Stop()
	c.playing.Reset()
	c.playing.InfoHash = infoHash
	c.playing.FileIndex = index
	c.playing.URL = url
	c.playing.Type = t
	c.playing.IsPaused = false
}

// Close leaves playback entirely.
func (c *Coordinator) Close() {
	c.Stop()
	c.gen++
	c.playing.Reset()
}

// ToggleCastMenu lists the devices of type t, or closes the menu if it is
// already showing them. Only allowed during local playback.
func (c *Coordinator) ToggleCastMenu(t DeviceType) error {
	if c.playing.Location != Local {
		return &CastingError{Op: "open cast menu", Location: c.playing.Location}
	}
	if m := c.playing.CastMenu; m != nil && m.Type == t {
		c.playing.CastMenu = nil
		c.menu = nil
		return nil
	}
	d, ok := c.reg.Driver(t)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoDriver, t)
	}
	devices := d.Devices()
	names := make([]string, len(devices))
	for i, dev := range devices {
		names[i] = dev.Name()
	}
	c.menu = devices
	c.playing.CastMenu = &CastMenu{Type: t, Devices: names}
	return nil
}

// SelectDevice connects to entry i of the open cast menu.
func (c *Coordinator) SelectDevice(i int) error {
	if c.playing.Location != Local {
		return &CastingError{Op: "select device", Location: c.playing.Location}
	}
	menu := c.playing.CastMenu
	if menu == nil {
		return ErrNoMenu
	}
	if i < 0 || i >= len(c.menu) {
		return fmt.Errorf("%w: %d", ErrNoSuchDevice, i)
	}
	dev := c.menu[i]
	t := menu.Type
	c.menu = nil
	c.playing.CastMenu = nil
	c.playing.Location = t.Pending()

	c.gen++
	gen := c.gen
	dev.SetStatusHandler(func(st Status) {
		c.post(func() { c.onStatus(gen, st) })
	})
	dev.Open(Media{
		URL:       c.playing.URL,
		Type:      c.playing.Type,
		StartTime: c.playing.CurrentTime,
	}, func(err error) {
		c.post(func() { c.onOpen(gen, t, dev, err) })
	})
	return nil
}

func (c *Coordinator) onOpen(gen int, t DeviceType, dev Device, err error) {
	if gen != c.gen {
		if err == nil {
			dev.Stop()
		}
		return
	}
	if err != nil {
		c.leaveDevice()
		c.onError(fmt.Sprintf("Could not connect to %s: %v", dev.Name(), err))
		return
	}
	c.active = dev
	c.playing.Location = t.Connected()
	c.playing.IsPaused = false
}

func (c *Coordinator) onStatus(gen int, st Status) {
	if gen != c.gen {
		return
	}
	switch {
	case st.Err != nil:
		name := ""
		if c.active != nil {
			name = c.active.Name()
		}
		c.leaveDevice()
		c.onError(fmt.Sprintf("Cast device %s error: %v", name, st.Err))
	case st.Disconnected:
		c.leaveDevice()
	default:
		c.playing.CurrentTime = st.CurrentTime
		c.playing.LastTimeUpdate = st.CurrentTime
	}
}

// leaveDevice returns to local playback at the last known position.
func (c *Coordinator) leaveDevice() {
	c.gen++
	c.active = nil
	c.playing.Location = Local
	c.playing.CurrentTime = c.playing.LastTimeUpdate
	c.playing.IsPaused = true
}

// Stop disconnects any cast device, pending or connected.
func (c *Coordinator) Stop() {
	if !c.playing.Location.IsCasting() {
		return
	}
	if c.active != nil {
		c.active.Stop()
	}
	c.leaveDevice()
}

func (c *Coordinator) Play() error  { return c.setPaused(false) }
func (c *Coordinator) Pause() error { return c.setPaused(true) }

func (c *Coordinator) PlayPause() error {
	return c.setPaused(!c.playing.IsPaused)
}

// setPaused forwards to the active backend only, never to both.
func (c *Coordinator) setPaused(paused bool) error {
	if c.playing.InfoHash == "" {
		return ErrNothingToPlay
	}
	switch {
	case c.active != nil:
		var err error
		if paused {
			err = c.active.Pause()
		} else {
			err = c.active.Play()
		}
		if err != nil {
			return err
		}
	case c.playing.Location.IsPending(), c.playing.Location == External:
		return &CastingError{Op: "toggle pause", Location: c.playing.Location}
	}
	c.playing.IsPaused = paused
	return nil
}

func (c *Coordinator) Seek(t float64) error {
	if c.active != nil {
		if err := c.active.Seek(t); err != nil {
			return err
		}
	}
	c.playing.CurrentTime = t
	c.playing.LastTimeUpdate = t
	return nil
}

// TimeUpdate records the local player's position.
func (c *Coordinator) TimeUpdate(t float64) {
	if c.playing.Location != Local {
		return
	}
	c.playing.CurrentTime = t
	c.playing.LastTimeUpdate = t
}

// StartExternal hands the current stream to an external player. A clean
// exit returns to the list, a failure also reports the player missing.
func (c *Coordinator) StartExternal(playerPath string) error {
	if c.playing.Location != Local {
		return &CastingError{Op: "open external player", Location: c.playing.Location}
	}
	if c.playing.URL == "" {
		return ErrNothingToPlay
	}
	c.playing.CastMenu = nil
	c.playing.Location = External
	c.playing.IsPaused = true
	c.gen++
	gen := c.gen
	url := c.playing.URL
	go func() {
		err := c.launcher.Run(playerPath, url)
		c.post(func() { c.onExternalExit(gen, err) })
	}()
	return nil
}

func (c *Coordinator) onExternalExit(gen int, err error) {
	if gen != c.gen {
		return
	}
	c.gen++
	c.playing.Reset()
	if err != nil {
		c.onError(fmt.Sprintf("External player not found or failed: %v", err))
	}
}
