// Package ipc handles inter-process communication between the daemon and clients.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/lyrebird-player/lyrebird/internal/types"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdPlay      CommandType = "play"
	CmdPause     CommandType = "pause"
	CmdResume    CommandType = "resume"
	CmdStop      CommandType = "stop"
	CmdNext      CommandType = "next"
	CmdPrev      CommandType = "prev"
	CmdQueue     CommandType = "queue"
	CmdSeek      CommandType = "seek"
	CmdVolume    CommandType = "volume"
	CmdMute      CommandType = "mute"
	CmdStatus    CommandType = "status"
	CmdGetConfig CommandType = "getConfig"
	CmdSetConfig CommandType = "setConfig"

	// Queue management commands
	CmdGetQueue    CommandType = "getQueue"
	CmdSetRepeat   CommandType = "setRepeat"
	CmdSetShuffle  CommandType = "setShuffle"
	CmdQueueJump   CommandType = "queueJump"
	CmdQueueRemove CommandType = "queueRemove"
	CmdQueueMove   CommandType = "queueMove"

	// Audio visualization
	CmdGetAudioData         CommandType = "getAudioData"
	CmdSubscribeAudioData   CommandType = "subscribeAudioData"
	CmdUnsubscribeAudioData CommandType = "unsubscribeAudioData"
)

// Push message types for server-initiated events
const (
	PushTrackEnded = "trackEnded"
	PushTrackError = "trackError"
	PushAudioData  = "audioData"
)

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PlayRequest is the data for a play command. The track is played
// immediately, replacing whatever is current.
type PlayRequest struct {
	Track types.TrackDescriptor `json:"track"`
}

// QueueRequest is the data for a queue command
type QueueRequest struct {
	Tracks []types.TrackDescriptor `json:"tracks"`
	Append bool                    `json:"append"`
}

// SeekRequest is the data for a seek command
type SeekRequest struct {
	Position int64 `json:"position"` // milliseconds
}

// VolumeRequest is the data for a volume command
type VolumeRequest struct {
	Level float64 `json:"level"` // 0.0 - 1.0
}

// MuteRequest is the data for a mute command
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// ConfigRequest is the data for a setConfig command
type ConfigRequest struct {
	SampleRate        *int     `json:"sampleRate,omitempty"`
	Channels          *int     `json:"channels,omitempty"`
	RingBufferMs      *int     `json:"ringBufferMs,omitempty"`
	DefaultVolume     *float64 `json:"defaultVolume,omitempty"`
	DecodeAheadMs     *int     `json:"decodeAheadMs,omitempty"`
	CrossfadeMs       *int     `json:"crossfadeMs,omitempty"`
	FadeCurve         *string  `json:"fadeCurve,omitempty"`
	LoopCrossfadeMs   *int     `json:"loopCrossfadeMs,omitempty"`
	CorruptFrameLimit *int     `json:"corruptFrameLimit,omitempty"`
}

// ConfigResponse is the response to a getConfig command
type ConfigResponse struct {
	ConfigPath        string  `json:"configPath"`
	SampleRate        int     `json:"sampleRate"`
	Channels          int     `json:"channels"`
	RingBufferMs      int     `json:"ringBufferMs"`
	DefaultVolume     float64 `json:"defaultVolume"`
	DecodeAheadMs     int     `json:"decodeAheadMs"`
	CrossfadeMs       int     `json:"crossfadeMs"`
	FadeCurve         string  `json:"fadeCurve"`
	LoopCrossfadeMs   int     `json:"loopCrossfadeMs"`
	CorruptFrameLimit int     `json:"corruptFrameLimit"`
}

// StatusResponse is the response to a status command
type StatusResponse struct {
	State        string                 `json:"state"`
	Track        *types.TrackDescriptor `json:"track,omitempty"`
	Position     int64                  `json:"position"` // milliseconds
	Duration     int64                  `json:"duration"` // milliseconds
	Volume       float64                `json:"volume"`
	Muted        bool                   `json:"muted"`
	UnderrunCount uint64                `json:"underrunCount"`
	QueueIndex   int                    `json:"queueIndex"`
	QueueSize    int                    `json:"queueSize"`
	RepeatMode   string                 `json:"repeatMode"` // "off", "one", "all"
	Shuffle      bool                   `json:"shuffle"`
}

// GetQueueResponse is the response to a getQueue command
type GetQueueResponse struct {
	Tracks     []types.TrackDescriptor `json:"tracks"`
	Index      int                     `json:"index"`
	RepeatMode string                  `json:"repeatMode"`
	Shuffle    bool                    `json:"shuffle"`
}

// SetRepeatRequest is the data for a setRepeat command
type SetRepeatRequest struct {
	Mode string `json:"mode"` // "off", "one", "all"
}

// SetShuffleRequest is the data for a setShuffle command
type SetShuffleRequest struct {
	Enabled bool `json:"enabled"`
}

// QueueJumpRequest is the data for a queueJump command
type QueueJumpRequest struct {
	Index int `json:"index"`
}

// QueueRemoveRequest is the data for a queueRemove command
type QueueRemoveRequest struct {
	Index int `json:"index"`
}

// QueueMoveRequest is the data for a queueMove command
type QueueMoveRequest struct {
	FromIndex int `json:"fromIndex"`
	ToIndex   int `json:"toIndex"`
}

// TrackEndedEvent is the payload of a trackEnded push message
type TrackEndedEvent struct {
	Track types.TrackDescriptor `json:"track"`
}

// TrackErrorEvent is the payload of a trackError push message
type TrackErrorEvent struct {
	Track types.TrackDescriptor `json:"track"`
	Error string                `json:"error"`
}

// AudioDataResponse contains real-time frequency data for visualization
type AudioDataResponse struct {
	// Bands contains frequency band magnitudes (0-255), similar to Web Audio API
	// 128 bands, logarithmically distributed from 20Hz to 20kHz
	// Note: Using []int instead of []uint8 because Go's json package base64-encodes []byte/[]uint8
	Bands []int `json:"bands"`
	// Position is the playback position in milliseconds when these samples were analyzed
	// This allows the UI to sync visualization with actual audio playback
	Position int64 `json:"position"`
	// Timestamp is when the audio data was captured (Unix ms)
	Timestamp int64 `json:"timestamp"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	msg := PushMessage{
		Type: msgType,
		Data: rawData,
	}
	return json.Marshal(msg)
}
