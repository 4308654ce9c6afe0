package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/lyrebird-player/lyrebird/internal/audio"
	"github.com/lyrebird-player/lyrebird/internal/config"
	"github.com/lyrebird-player/lyrebird/internal/media"
	"github.com/lyrebird-player/lyrebird/internal/queue"
	"github.com/lyrebird-player/lyrebird/internal/types"
)

// Server handles IPC communication with clients. It is also the playback
// controller: it owns the queue/engine wiring, so track advancement from the
// engine, from clients, and from OS media keys all funnel through it.
type Server struct {
	socketPath     string
	configMgr      *config.Manager
	engine         *audio.Engine
	queueMgr       *queue.Manager
	mediaSession   media.Session
	analyzer       *audio.Analyzer
	listener       net.Listener
	mu             sync.Mutex
	clients        map[net.Conn]struct{}
	advancingTrack sync.Mutex // Prevents concurrent next/prev track calls

	// Audio data streaming (callback-based, no polling)
	audioSubsMu sync.RWMutex
	audioSubs   map[net.Conn]bool // Clients subscribed to audio data
}

// NewServer creates a new IPC server. The analyzer may be nil when no output
// device is attached.
func NewServer(
	socketPath string,
	configMgr *config.Manager,
	engine *audio.Engine,
	queueMgr *queue.Manager,
	mediaSession media.Session,
	analyzer *audio.Analyzer,
) (*Server, error) {
	s := &Server{
		socketPath:   socketPath,
		configMgr:    configMgr,
		engine:       engine,
		queueMgr:     queueMgr,
		mediaSession: mediaSession,
		analyzer:     analyzer,
		clients:      make(map[net.Conn]struct{}),
		audioSubs:    make(map[net.Conn]bool),
	}

	// Register callback for real-time audio data push (no polling!)
	if analyzer != nil {
		analyzer.SetCallback(func(bands []uint8) {
			s.pushAudioDataImmediate(bands)
		})
	}

	engine.SetOnTrackEnd(func(track types.TrackDescriptor) {
		log.Printf("[QUEUE] Track ended: %s, advancing to next", track.Path)
		s.pushEvent(PushTrackEnded, TrackEndedEvent{Track: track})
		s.advanceAfterEnd()
	})

	engine.SetOnTrackError(func(track types.TrackDescriptor, err error) {
		log.Printf("[QUEUE] Track failed: %s: %v", track.Path, err)
		s.pushEvent(PushTrackError, TrackErrorEvent{Track: track, Error: err.Error()})
		s.playNextTrack()
	})

	mediaSession.SetCommandHandler(media.CommandHandlerFunc(s.onMediaCommand))

	return s, nil
}

// onMediaCommand routes OS media-key commands into the engine and queue.
func (s *Server) onMediaCommand(cmd media.Command) error {
	log.Printf("[MEDIA] Command from OS: %s", cmd.Action)
	switch cmd.Action {
	case media.ActionPlay:
		s.engine.Resume()
	case media.ActionPause:
		s.engine.Pause()
	case media.ActionPlayPause:
		if s.engine.Transport().Load().State == audio.StatePlaying {
			s.engine.Pause()
		} else {
			s.engine.Resume()
		}
	case media.ActionStop:
		s.engine.Stop()
	case media.ActionNext:
		s.playNextTrack()
	case media.ActionPrevious:
		s.playPrevTrack()
	case media.ActionSeek:
		if err := s.engine.Seek(cmd.SeekTo.Seconds()); err != nil {
			return err
		}
	case media.ActionSetShuffle:
		s.queueMgr.SetShuffle(cmd.Shuffle)
		s.armNext()
	case media.ActionSetRepeat:
		s.queueMgr.SetRepeat(cmd.Repeat)
		s.armNext()
	}
	s.syncMediaSession()
	return nil
}

// advanceAfterEnd moves the queue forward after the engine reports a natural
// track end. When the engine already spliced the queued successor (gapless or
// crossfade) the new track is playing; only the queue index needs to catch up.
func (s *Server) advanceAfterEnd() {
	s.advancingTrack.Lock()
	defer s.advancingTrack.Unlock()

	next, ok := s.queueMgr.Next()
	if !ok {
		log.Printf("[QUEUE] No more tracks in queue")
		s.engine.ClearQueued()
		s.syncMediaSession()
		return
	}

	snap := s.engine.Transport().Load()
	if snap.State == audio.StatePlaying && snap.Track != nil && snap.Track.Path == next.Path {
		// engine handled the transition itself; arm the following track
		s.armNext()
	} else {
		s.engine.Play(next)
		s.armNext()
	}
	s.syncMediaSession()
}

// armNext hands the queue's upcoming track to the engine for gapless or
// crossfaded handoff.
func (s *Server) armNext() {
	if peek, ok := s.queueMgr.PeekNext(); ok {
		s.engine.Enqueue(peek)
	} else {
		s.engine.ClearQueued()
	}
}

// playNextTrack advances to the next track in the queue and starts playing
func (s *Server) playNextTrack() {
	s.advancingTrack.Lock()
	defer s.advancingTrack.Unlock()

	next, ok := s.queueMgr.Next()
	if !ok {
		log.Printf("[QUEUE] No more tracks in queue")
		return
	}

	log.Printf("[QUEUE] Playing next track: %s", next.Path)
	s.engine.Play(next)
	s.armNext()
	s.syncMediaSession()
}

// playPrevTrack restarts the current track when playback is already well
// underway, otherwise goes back one queue slot.
func (s *Server) playPrevTrack() {
	s.advancingTrack.Lock()
	defer s.advancingTrack.Unlock()

	restartAfter := s.configMgr.Get().Behavior.PreviousRestartSec
	if cur, ok := s.queueMgr.Current(); ok && s.engine.Position() >= restartAfter {
		log.Printf("[QUEUE] Restarting current track: %s", cur.Path)
		s.engine.Play(cur)
		s.armNext()
		s.syncMediaSession()
		return
	}

	prev, ok := s.queueMgr.Prev()
	if !ok {
		log.Printf("[QUEUE] No previous track in queue")
		return
	}

	log.Printf("[QUEUE] Playing previous track: %s", prev.Path)
	s.engine.Play(prev)
	s.armNext()
	s.syncMediaSession()
}

// syncMediaSession publishes the full playback truth to the OS.
func (s *Server) syncMediaSession() {
	snap := s.engine.Transport().Load()

	np := media.NowPlaying{
		State:     mediaTransportState(snap.State),
		Position:  time.Duration(s.engine.Position() * float64(time.Second)),
		Duration:  time.Duration(s.engine.Duration() * float64(time.Second)),
		Track:     snap.Track,
		Shuffle:   s.queueMgr.GetShuffle(),
		Repeat:    s.queueMgr.GetRepeat(),
		Underruns: s.engine.Transport().Underruns(),
	}
	if snap.Track != nil {
		if m := snap.Track.Metadata; m != nil {
			np.ArtPath = m.ArtPath
		}
		if np.ArtPath == "" {
			np.ArtPath = media.FindAlbumArt(snap.Track.Path)
		}
	}

	if err := s.mediaSession.Publish(np); err != nil {
		log.Printf("[MEDIA] Failed to publish playback state: %v", err)
	}
}

func mediaTransportState(state audio.State) media.TransportState {
	switch state {
	case audio.StatePlaying:
		return media.TransportPlaying
	case audio.StatePaused:
		return media.TransportPaused
	case audio.StateSeeking:
		return media.TransportSeeking
	case audio.StateTrackEnding:
		return media.TransportTrackEnding
	default:
		return media.TransportStopped
	}
}

// Start starts the IPC server
func (s *Server) Start(ctx context.Context) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	log.Printf("[IPC] Creating socket at %s", s.socketPath)

	// Create Unix socket listener
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions (user-only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("[IPC] Server listening, waiting for connections...")

	// Accept connections in background
	go s.acceptLoop(ctx)

	// Wait for context cancellation
	<-ctx.Done()

	log.Printf("[IPC] Shutting down server...")

	// Cleanup
	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	log.Printf("[IPC] Closed %d client connections", clientCount)

	listener.Close()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] Server stopped")

	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("[IPC] Accept error: %v", err)
				continue
			}
		}

		remoteAddr := conn.RemoteAddr().String()
		log.Printf("[IPC] New client connection from %s", remoteAddr)

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		clientCount := len(s.clients)
		s.mu.Unlock()

		log.Printf("[IPC] Active clients: %d", clientCount)

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	defer func() {
		log.Printf("[IPC] Client disconnected: %s", remoteAddr)
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()
		// Remove from audio subscribers
		s.audioSubsMu.Lock()
		delete(s.audioSubs, conn)
		s.audioSubsMu.Unlock()
		log.Printf("[IPC] Active clients: %d", clientCount)
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Read line (newline-delimited JSON)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("[IPC] Read error from %s: %v", remoteAddr, err)
			}
			return
		}

		// Parse request
		req, err := DecodeRequest(line)
		if err != nil {
			log.Printf("[IPC] Invalid request format from %s: %v", remoteAddr, err)
			s.sendError(conn, "invalid request format")
			continue
		}

		// Skip verbose logging for frequent polling commands
		isPollingCmd := req.Cmd == CmdStatus || req.Cmd == CmdGetAudioData

		if !isPollingCmd {
			log.Printf("[IPC] Command: %s", req.Cmd)
		}

		// Handle request (pass conn for subscription commands)
		resp := s.handleRequest(req, conn)

		if !isPollingCmd {
			if resp.Success {
				log.Printf("[IPC] Response: success")
			} else {
				log.Printf("[IPC] Response: error=%q", resp.Error)
			}
		}

		// Send response
		if err := s.sendResponse(conn, resp); err != nil {
			log.Printf("[IPC] Send error to %s: %v", remoteAddr, err)
			return
		}
	}
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func (s *Server) handleRequest(req *Request, conn net.Conn) *Response {
	switch req.Cmd {
	case CmdPlay:
		return s.handlePlay(req)
	case CmdPause:
		return s.handlePause()
	case CmdResume:
		return s.handleResume()
	case CmdStop:
		return s.handleStop()
	case CmdNext:
		return s.handleNext()
	case CmdPrev:
		return s.handlePrev()
	case CmdQueue:
		return s.handleQueue(req)
	case CmdSeek:
		return s.handleSeek(req)
	case CmdVolume:
		return s.handleVolume(req)
	case CmdMute:
		return s.handleMute(req)
	case CmdStatus:
		return s.handleStatus()
	case CmdGetConfig:
		return s.handleGetConfig()
	case CmdSetConfig:
		return s.handleSetConfig(req)
	case CmdGetQueue:
		return s.handleGetQueue()
	case CmdSetRepeat:
		return s.handleSetRepeat(req)
	case CmdSetShuffle:
		return s.handleSetShuffle(req)
	case CmdQueueJump:
		return s.handleQueueJump(req)
	case CmdQueueRemove:
		return s.handleQueueRemove(req)
	case CmdQueueMove:
		return s.handleQueueMove(req)
	case CmdGetAudioData:
		return s.handleGetAudioData()
	case CmdSubscribeAudioData:
		return s.handleSubscribeAudioData(conn)
	case CmdUnsubscribeAudioData:
		return s.handleUnsubscribeAudioData(conn)
	default:
		return NewErrorResponse("unknown command")
	}
}

func (s *Server) handlePlay(req *Request) *Response {
	var playReq PlayRequest
	if err := json.Unmarshal(req.Data, &playReq); err != nil {
		log.Printf("[PLAYER] Invalid play request: %v", err)
		return NewErrorResponse("invalid play request")
	}

	if playReq.Track.Path == "" {
		log.Printf("[PLAYER] Play request missing path")
		return NewErrorResponse("path is required")
	}

	log.Printf("[PLAYER] Play request: %s", playReq.Track.Path)

	// Check if this track is in the queue
	queueItems := s.queueMgr.GetItems()
	foundInQueue := false
	for i, item := range queueItems {
		if item.Path == playReq.Track.Path {
			s.queueMgr.SetIndex(i)
			log.Printf("[QUEUE] Found track in queue at index %d", i)
			foundInQueue = true
			break
		}
	}

	// If not in queue, add it as a single-track queue
	if !foundInQueue {
		s.queueMgr.Set([]types.TrackDescriptor{playReq.Track})
		s.queueMgr.SetIndex(0)
		log.Printf("[QUEUE] Added single track to queue")
	}

	s.engine.Play(playReq.Track)
	s.armNext()
	s.syncMediaSession()

	log.Printf("[PLAYER] Now playing: %s", playReq.Track.Path)
	return s.handleStatus()
}

func (s *Server) handlePause() *Response {
	log.Printf("[PLAYER] Pause requested")
	s.engine.Pause()
	s.syncMediaSession()
	return s.handleStatus()
}

func (s *Server) handleResume() *Response {
	log.Printf("[PLAYER] Resume requested")
	s.engine.Resume()
	s.syncMediaSession()
	return s.handleStatus()
}

func (s *Server) handleStop() *Response {
	log.Printf("[PLAYER] Stop requested")
	s.engine.Stop()
	s.syncMediaSession()
	return s.handleStatus()
}

func (s *Server) handleNext() *Response {
	log.Printf("[PLAYER] Next track requested")
	if _, ok := s.queueMgr.PeekNext(); !ok {
		if _, size := s.queueMgr.Position(); size == 0 {
			return NewErrorResponse("no next track")
		}
	}
	s.playNextTrack()
	return s.handleStatus()
}

func (s *Server) handlePrev() *Response {
	log.Printf("[PLAYER] Previous track requested")
	s.playPrevTrack()
	return s.handleStatus()
}

func (s *Server) handleQueue(req *Request) *Response {
	var queueReq QueueRequest
	if err := json.Unmarshal(req.Data, &queueReq); err != nil {
		return NewErrorResponse("invalid queue request")
	}

	log.Printf("[QUEUE] Queue request: %d tracks, append=%v", len(queueReq.Tracks), queueReq.Append)

	if queueReq.Append {
		s.queueMgr.Append(queueReq.Tracks)
		log.Printf("[QUEUE] Appended %d tracks to queue", len(queueReq.Tracks))
	} else {
		s.queueMgr.Set(queueReq.Tracks)
		log.Printf("[QUEUE] Set queue to %d tracks", len(queueReq.Tracks))
	}

	// an appended track may become the gapless successor of the current one
	s.armNext()

	idx, size := s.queueMgr.Position()
	log.Printf("[QUEUE] Queue position: %d/%d", idx, size)

	return s.handleStatus()
}

func (s *Server) handleSeek(req *Request) *Response {
	var seekReq SeekRequest
	if err := json.Unmarshal(req.Data, &seekReq); err != nil {
		return NewErrorResponse("invalid seek request")
	}

	log.Printf("[PLAYER] Seek to position: %dms", seekReq.Position)
	if err := s.engine.Seek(float64(seekReq.Position) / 1000); err != nil {
		log.Printf("[PLAYER] Seek failed: %v", err)
		return NewErrorResponse(err.Error())
	}

	return s.handleStatus()
}

func (s *Server) handleVolume(req *Request) *Response {
	var volReq VolumeRequest
	if err := json.Unmarshal(req.Data, &volReq); err != nil {
		return NewErrorResponse("invalid volume request")
	}

	log.Printf("[PLAYER] Set volume to: %.2f", volReq.Level)
	s.engine.SetVolume(volReq.Level)

	return s.handleStatus()
}

func (s *Server) handleMute(req *Request) *Response {
	var muteReq MuteRequest
	if err := json.Unmarshal(req.Data, &muteReq); err != nil {
		return NewErrorResponse("invalid mute request")
	}

	log.Printf("[PLAYER] Set muted to: %v", muteReq.Muted)
	s.engine.SetMuted(muteReq.Muted)

	return s.handleStatus()
}

func (s *Server) handleStatus() *Response {
	snap := s.engine.Transport().Load()
	queueIdx, queueSize := s.queueMgr.Position()

	statusResp := StatusResponse{
		State:         snap.State.String(),
		Track:         snap.Track,
		Position:      int64(s.engine.Position() * 1000),
		Duration:      int64(s.engine.Duration() * 1000),
		Volume:        snap.Volume,
		Muted:         snap.Muted,
		UnderrunCount: s.engine.Transport().Underruns(),
		QueueIndex:    queueIdx,
		QueueSize:     queueSize,
		RepeatMode:    s.queueMgr.GetRepeat().String(),
		Shuffle:       s.queueMgr.GetShuffle(),
	}

	// Log status details if playing or paused
	if snap.State != audio.StateStopped && snap.Track != nil {
		log.Printf("[PLAYER] Status: state=%s pos=%dms dur=%dms path=%s",
			statusResp.State, statusResp.Position, statusResp.Duration,
			truncateForLog(snap.Track.Path, 50))
	}

	resp, err := NewSuccessResponse(statusResp)
	if err != nil {
		return NewErrorResponse("internal error")
	}

	return resp
}

func (s *Server) handleGetAudioData() *Response {
	if s.analyzer == nil {
		return NewErrorResponse("no audio output attached")
	}
	bandsU8 := s.analyzer.Bands()

	// Convert []uint8 to []int for JSON (Go base64-encodes []uint8)
	bands := make([]int, len(bandsU8))
	for i, b := range bandsU8 {
		bands[i] = int(b)
	}

	resp, err := NewSuccessResponse(AudioDataResponse{
		Bands:     bands,
		Position:  int64(s.engine.Position() * 1000),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}

	return resp
}

func (s *Server) handleGetConfig() *Response {
	log.Printf("[CONFIG] Get config requested")
	cfg := s.configMgr.Get()

	resp, err := NewSuccessResponse(ConfigResponse{
		ConfigPath:        s.configMgr.GetPath(),
		SampleRate:        cfg.Audio.SampleRate,
		Channels:          cfg.Audio.Channels,
		RingBufferMs:      cfg.Audio.RingBufferMs,
		DefaultVolume:     cfg.Audio.DefaultVolume,
		DecodeAheadMs:     cfg.Engine.DecodeAheadMs,
		CrossfadeMs:       cfg.Engine.CrossfadeMs,
		FadeCurve:         cfg.Engine.FadeCurve,
		LoopCrossfadeMs:   cfg.Engine.LoopCrossfadeMs,
		CorruptFrameLimit: cfg.Engine.CorruptFrameLimit,
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}

	return resp
}

func (s *Server) handleSetConfig(req *Request) *Response {
	log.Printf("[CONFIG] Set config requested")
	var cfgReq ConfigRequest
	if err := json.Unmarshal(req.Data, &cfgReq); err != nil {
		return NewErrorResponse("invalid config request")
	}

	cfg := s.configMgr.Get()

	// Update fields if provided; engine tunables take effect on restart
	if cfgReq.SampleRate != nil {
		cfg.Audio.SampleRate = *cfgReq.SampleRate
	}
	if cfgReq.Channels != nil {
		cfg.Audio.Channels = *cfgReq.Channels
	}
	if cfgReq.RingBufferMs != nil {
		cfg.Audio.RingBufferMs = *cfgReq.RingBufferMs
	}
	if cfgReq.DefaultVolume != nil {
		cfg.Audio.DefaultVolume = *cfgReq.DefaultVolume
	}
	if cfgReq.DecodeAheadMs != nil {
		cfg.Engine.DecodeAheadMs = *cfgReq.DecodeAheadMs
	}
	if cfgReq.CrossfadeMs != nil {
		cfg.Engine.CrossfadeMs = *cfgReq.CrossfadeMs
	}
	if cfgReq.FadeCurve != nil {
		cfg.Engine.FadeCurve = *cfgReq.FadeCurve
	}
	if cfgReq.LoopCrossfadeMs != nil {
		cfg.Engine.LoopCrossfadeMs = *cfgReq.LoopCrossfadeMs
	}
	if cfgReq.CorruptFrameLimit != nil {
		cfg.Engine.CorruptFrameLimit = *cfgReq.CorruptFrameLimit
	}
	// Save the updated config
	if err := s.configMgr.Update(cfg); err != nil {
		log.Printf("[CONFIG] Failed to save config: %v", err)
		return NewErrorResponse(fmt.Sprintf("failed to save config: %v", err))
	}

	log.Printf("[CONFIG] Config updated and saved")
	return s.handleGetConfig()
}

func (s *Server) handleGetQueue() *Response {
	log.Printf("[QUEUE] Get queue requested")

	items := s.queueMgr.GetItems()
	idx, _ := s.queueMgr.Position()

	resp, err := NewSuccessResponse(GetQueueResponse{
		Tracks:     items,
		Index:      idx,
		RepeatMode: s.queueMgr.GetRepeat().String(),
		Shuffle:    s.queueMgr.GetShuffle(),
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleSetRepeat(req *Request) *Response {
	var repeatReq SetRepeatRequest
	if err := json.Unmarshal(req.Data, &repeatReq); err != nil {
		return NewErrorResponse("invalid setRepeat request")
	}

	log.Printf("[QUEUE] Set repeat mode to: %s", repeatReq.Mode)
	s.queueMgr.SetRepeat(types.ParseRepeatMode(repeatReq.Mode))

	// the successor may have changed
	s.armNext()
	s.syncMediaSession()

	return s.handleStatus()
}

func (s *Server) handleSetShuffle(req *Request) *Response {
	var shuffleReq SetShuffleRequest
	if err := json.Unmarshal(req.Data, &shuffleReq); err != nil {
		return NewErrorResponse("invalid setShuffle request")
	}

	log.Printf("[QUEUE] Set shuffle to: %v", shuffleReq.Enabled)
	s.queueMgr.SetShuffle(shuffleReq.Enabled)

	s.armNext()
	s.syncMediaSession()

	return s.handleStatus()
}

func (s *Server) handleQueueJump(req *Request) *Response {
	var jumpReq QueueJumpRequest
	if err := json.Unmarshal(req.Data, &jumpReq); err != nil {
		return NewErrorResponse("invalid queueJump request")
	}

	log.Printf("[QUEUE] Jump to index: %d", jumpReq.Index)

	if !s.queueMgr.SetIndex(jumpReq.Index) {
		return NewErrorResponse("invalid queue index")
	}

	// Get the current item and start playing it
	track, ok := s.queueMgr.Current()
	if !ok {
		return NewErrorResponse("no track at index")
	}

	s.engine.Play(track)
	s.armNext()
	s.syncMediaSession()

	return s.handleStatus()
}

func (s *Server) handleQueueRemove(req *Request) *Response {
	var removeReq QueueRemoveRequest
	if err := json.Unmarshal(req.Data, &removeReq); err != nil {
		return NewErrorResponse("invalid queueRemove request")
	}

	log.Printf("[QUEUE] Remove item at index: %d", removeReq.Index)

	if !s.queueMgr.Remove(removeReq.Index) {
		return NewErrorResponse("invalid queue index")
	}

	s.armNext()

	return s.handleStatus()
}

func (s *Server) handleQueueMove(req *Request) *Response {
	var moveReq QueueMoveRequest
	if err := json.Unmarshal(req.Data, &moveReq); err != nil {
		return NewErrorResponse("invalid queueMove request")
	}

	log.Printf("[QUEUE] Move item from %d to %d", moveReq.FromIndex, moveReq.ToIndex)

	if !s.queueMgr.Move(moveReq.FromIndex, moveReq.ToIndex) {
		return NewErrorResponse("invalid queue indices")
	}

	s.armNext()

	return s.handleStatus()
}

func (s *Server) sendResponse(conn net.Conn, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func (s *Server) sendError(conn net.Conn, msg string) {
	s.sendResponse(conn, NewErrorResponse(msg))
}

// pushEvent broadcasts a server-initiated event to all connected clients.
func (s *Server) pushEvent(msgType string, data interface{}) {
	msgBytes, err := NewPushMessage(msgType, data)
	if err != nil {
		return
	}
	msgBytes = append(msgBytes, '\n')

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Write(msgBytes)
	}
}

// Audio data subscription handlers

func (s *Server) handleSubscribeAudioData(conn net.Conn) *Response {
	s.audioSubsMu.Lock()
	s.audioSubs[conn] = true
	count := len(s.audioSubs)
	s.audioSubsMu.Unlock()

	log.Printf("[AUDIO] Client subscribed to audio data (total: %d)", count)

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": true})
	return resp
}

func (s *Server) handleUnsubscribeAudioData(conn net.Conn) *Response {
	s.audioSubsMu.Lock()
	delete(s.audioSubs, conn)
	count := len(s.audioSubs)
	s.audioSubsMu.Unlock()

	log.Printf("[AUDIO] Client unsubscribed from audio data (remaining: %d)", count)

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": false})
	return resp
}

// pushAudioDataImmediate is called directly by the audio analyzer callback
// This provides true real-time push with zero latency (no polling/timer)
func (s *Server) pushAudioDataImmediate(bandsU8 []uint8) {
	s.audioSubsMu.RLock()
	if len(s.audioSubs) == 0 {
		s.audioSubsMu.RUnlock()
		return
	}

	// Copy subscriber list to avoid holding lock during I/O
	subs := make([]net.Conn, 0, len(s.audioSubs))
	for conn := range s.audioSubs {
		subs = append(subs, conn)
	}
	s.audioSubsMu.RUnlock()

	// Convert []uint8 to []int for JSON
	bands := make([]int, len(bandsU8))
	for i, b := range bandsU8 {
		bands[i] = int(b)
	}

	timestamp := time.Now().UnixMilli()

	// Create push message with position for sync
	msgBytes, err := NewPushMessage(PushAudioData, AudioDataResponse{
		Bands:     bands,
		Position:  int64(s.engine.Position() * 1000),
		Timestamp: timestamp,
	})
	if err != nil {
		return
	}
	msgBytes = append(msgBytes, '\n')

	// Send to all subscribers immediately
	for _, conn := range subs {
		_, err := conn.Write(msgBytes)
		if err != nil {
			// Remove failed connection from subscribers
			s.audioSubsMu.Lock()
			delete(s.audioSubs, conn)
			s.audioSubsMu.Unlock()
		}
	}
}
