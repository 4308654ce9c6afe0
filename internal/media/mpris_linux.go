//go:build linux

package media

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/lyrebird-player/lyrebird/internal/types"
)

const (
	mprisInterface       = "org.mpris.MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
	mprisBusName         = "org.mpris.MediaPlayer2.lyrebird"
	mprisObjectPath      = "/org/mpris/MediaPlayer2"
	mprisTrackPath       = "/org/lyrebird/track/1"
)

// MPRISSession projects NowPlaying onto the MPRIS player interface.
type MPRISSession struct {
	conn    *dbus.Conn
	handler CommandHandler
	np      NowPlaying
}

// NewSession creates a new MPRIS media session
func NewSession() (Session, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	reply, err := conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name already taken")
	}

	session := &MPRISSession{conn: conn}
	if err := session.exportInterfaces(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to export interfaces: %w", err)
	}
	return session, nil
}

func (s *MPRISSession) exportInterfaces() error {
	if err := s.conn.Export(s, dbus.ObjectPath(mprisObjectPath), mprisInterface); err != nil {
		return err
	}
	if err := s.conn.Export(s, dbus.ObjectPath(mprisObjectPath), mprisPlayerInterface); err != nil {
		return err
	}
	return s.conn.Export(s, dbus.ObjectPath(mprisObjectPath), "org.freedesktop.DBus.Properties")
}

// Publish diffs against the previously published truth and emits
// PropertiesChanged for whatever moved. Position is not signalled; MPRIS
// clients extrapolate it from Rate and the Seeked signal.
func (s *MPRISSession) Publish(np NowPlaying) error {
	prev := s.np
	s.np = np

	props := map[string]dbus.Variant{}
	if playbackStatus(np.State) != playbackStatus(prev.State) {
		props["PlaybackStatus"] = dbus.MakeVariant(playbackStatus(np.State))
	}
	if trackChanged(prev.Track, np.Track) || prev.ArtPath != np.ArtPath || prev.Duration != np.Duration {
		props["Metadata"] = dbus.MakeVariant(metadataMap(np))
	}
	if prev.Shuffle != np.Shuffle {
		props["Shuffle"] = dbus.MakeVariant(np.Shuffle)
	}
	if prev.Repeat != np.Repeat {
		props["LoopStatus"] = dbus.MakeVariant(loopStatus(np.Repeat))
	}

	// becoming audible means the position jumped (start, resume, seek)
	if np.State.Audible() && !prev.State.Audible() {
		s.emitSeeked(np.Position)
	}

	if len(props) == 0 {
		return nil
	}
	return s.emitPropertiesChanged(mprisPlayerInterface, props)
}

func trackChanged(a, b *types.TrackDescriptor) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	return a != nil && (a.ID != b.ID || a.Path != b.Path)
}

// emitSeeked emits the Seeked signal to tell clients the current position
func (s *MPRISSession) emitSeeked(position time.Duration) error {
	return s.conn.Emit(
		dbus.ObjectPath(mprisObjectPath),
		mprisPlayerInterface+".Seeked",
		position.Microseconds(),
	)
}

// SetCommandHandler sets the handler for media commands
func (s *MPRISSession) SetCommandHandler(handler CommandHandler) {
	s.handler = handler
}

// Close releases resources
func (s *MPRISSession) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *MPRISSession) dispatch(cmd Command) *dbus.Error {
	if s.handler != nil {
		s.handler.OnCommand(cmd)
	}
	return nil
}

// org.mpris.MediaPlayer2 methods

func (s *MPRISSession) Raise() *dbus.Error {
	return nil
}

func (s *MPRISSession) Quit() *dbus.Error {
	return nil
}

// org.mpris.MediaPlayer2.Player methods

func (s *MPRISSession) Play() *dbus.Error {
	return s.dispatch(Command{Action: ActionPlay})
}

func (s *MPRISSession) Pause() *dbus.Error {
	return s.dispatch(Command{Action: ActionPause})
}

func (s *MPRISSession) PlayPause() *dbus.Error {
	if s.np.State.Audible() {
		return s.Pause()
	}
	return s.Play()
}

func (s *MPRISSession) Stop() *dbus.Error {
	return s.dispatch(Command{Action: ActionStop})
}

func (s *MPRISSession) Next() *dbus.Error {
	return s.dispatch(Command{Action: ActionNext})
}

func (s *MPRISSession) Previous() *dbus.Error {
	return s.dispatch(Command{Action: ActionPrevious})
}

// Seek receives a relative offset in microseconds; resolve it against the
// last published position into an absolute target.
func (s *MPRISSession) Seek(offset int64) *dbus.Error {
	target := s.np.Position + time.Duration(offset)*time.Microsecond
	if target < 0 {
		target = 0
	}
	return s.dispatch(Command{Action: ActionSeek, SeekTo: target})
}

func (s *MPRISSession) SetPosition(trackId dbus.ObjectPath, position int64) *dbus.Error {
	return s.dispatch(Command{Action: ActionSeek, SeekTo: time.Duration(position) * time.Microsecond})
}

// org.freedesktop.DBus.Properties methods

func (s *MPRISSession) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	switch iface {
	case mprisInterface:
		return s.getMediaPlayer2Property(prop)
	case mprisPlayerInterface:
		return s.getPlayerProperty(prop)
	}
	return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
}

func (s *MPRISSession) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	switch iface {
	case mprisInterface:
		return s.getAllMediaPlayer2Properties(), nil
	case mprisPlayerInterface:
		return s.getAllPlayerProperties(), nil
	}
	return nil, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
}

func (s *MPRISSession) Set(iface, prop string, value dbus.Variant) *dbus.Error {
	if iface != mprisPlayerInterface {
		return nil
	}

	switch prop {
	case "Shuffle":
		enabled, ok := value.Value().(bool)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("invalid type for Shuffle"))
		}
		return s.dispatch(Command{Action: ActionSetShuffle, Shuffle: enabled})
	case "LoopStatus":
		status, ok := value.Value().(string)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("invalid type for LoopStatus"))
		}
		return s.dispatch(Command{Action: ActionSetRepeat, Repeat: repeatOf(status)})
	}
	return nil
}

func (s *MPRISSession) getMediaPlayer2Property(prop string) (dbus.Variant, *dbus.Error) {
	all := s.getAllMediaPlayer2Properties()
	if v, ok := all[prop]; ok {
		return v, nil
	}
	return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property: %s", prop))
}

func (s *MPRISSession) getPlayerProperty(prop string) (dbus.Variant, *dbus.Error) {
	all := s.getAllPlayerProperties()
	if v, ok := all[prop]; ok {
		return v, nil
	}
	return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property: %s", prop))
}

func (s *MPRISSession) getAllMediaPlayer2Properties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"CanQuit":             dbus.MakeVariant(false),
		"CanRaise":            dbus.MakeVariant(false),
		"HasTrackList":        dbus.MakeVariant(false),
		"Identity":            dbus.MakeVariant("lyrebird"),
		"DesktopEntry":        dbus.MakeVariant("lyrebird"),
		"SupportedUriSchemes": dbus.MakeVariant([]string{"file"}),
		"SupportedMimeTypes":  dbus.MakeVariant([]string{"audio/mpeg", "audio/x-wav", "audio/ogg", "audio/aiff"}),
	}
}

func (s *MPRISSession) getAllPlayerProperties() map[string]dbus.Variant {
	canSkip := s.np.Track != nil
	return map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(playbackStatus(s.np.State)),
		"Metadata":       dbus.MakeVariant(metadataMap(s.np)),
		"Position":       dbus.MakeVariant(s.np.Position.Microseconds()),
		"Rate":           dbus.MakeVariant(1.0),
		"MinimumRate":    dbus.MakeVariant(1.0),
		"MaximumRate":    dbus.MakeVariant(1.0),
		"CanGoNext":      dbus.MakeVariant(canSkip),
		"CanGoPrevious":  dbus.MakeVariant(canSkip),
		"CanPlay":        dbus.MakeVariant(true),
		"CanPause":       dbus.MakeVariant(true),
		"CanSeek":        dbus.MakeVariant(canSkip),
		"CanControl":     dbus.MakeVariant(true),
		"Volume":         dbus.MakeVariant(1.0),
		"Shuffle":        dbus.MakeVariant(s.np.Shuffle),
		"LoopStatus":     dbus.MakeVariant(loopStatus(s.np.Repeat)),
	}
}

// playbackStatus flattens the transport state to the three values MPRIS
// knows. Seeking and track-ending are still audibly playing.
func playbackStatus(state TransportState) string {
	switch {
	case state.Audible():
		return "Playing"
	case state == TransportPaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

func loopStatus(mode types.RepeatMode) string {
	switch mode {
	case types.RepeatOne:
		return "Track"
	case types.RepeatAll:
		return "Playlist"
	default:
		return "None"
	}
}

func repeatOf(status string) types.RepeatMode {
	switch status {
	case "Track":
		return types.RepeatOne
	case "Playlist":
		return types.RepeatAll
	default:
		return types.RepeatOff
	}
}

func metadataMap(np NowPlaying) map[string]dbus.Variant {
	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath(mprisTrackPath)),
	}
	if np.Track == nil {
		return m
	}

	title := ""
	if meta := np.Track.Metadata; meta != nil {
		title = meta.Title
		if meta.Artist != "" {
			m["xesam:artist"] = dbus.MakeVariant([]string{meta.Artist})
		}
		if meta.Album != "" {
			m["xesam:album"] = dbus.MakeVariant(meta.Album)
		}
	}
	if title == "" {
		title = filepath.Base(np.Track.Path)
	}
	m["xesam:title"] = dbus.MakeVariant(title)

	if np.Duration > 0 {
		m["mpris:length"] = dbus.MakeVariant(np.Duration.Microseconds())
	}
	if np.ArtPath != "" {
		m["mpris:artUrl"] = dbus.MakeVariant("file://" + np.ArtPath)
	}
	if np.Track.HasLoop() {
		// non-standard keys; the daemon's own clients read these
		m["lyrebird:loopStart"] = dbus.MakeVariant(*np.Track.LoopStart)
		m["lyrebird:loopEnd"] = dbus.MakeVariant(*np.Track.LoopEnd)
	}
	return m
}

func (s *MPRISSession) emitPropertiesChanged(iface string, props map[string]dbus.Variant) error {
	return s.conn.Emit(
		dbus.ObjectPath(mprisObjectPath),
		"org.freedesktop.DBus.Properties.PropertiesChanged",
		iface,
		props,
		[]string{},
	)
}
