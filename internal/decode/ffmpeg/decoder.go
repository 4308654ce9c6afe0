// Package ffmpeg is the fallback decoder. It shells out to ffmpeg for
// decoding and ffprobe for stream inspection, so any format the installed
// ffmpeg understands (flac, opus, m4a, ...) plays without a native adapter.
package ffmpeg

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/lyrebird-player/lyrebird/internal/decode"
)

// Decoder locates the ffmpeg and ffprobe binaries once and opens streams
// against them.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
}

// New returns a Decoder, or an error if ffmpeg/ffprobe are not in PATH.
func New() (*Decoder, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &Decoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}, nil
}

// Sniff always matches; the Decoder is meant to be installed as the registry
// fallback, after the native adapters have had their chance.
func (d *Decoder) Sniff(header []byte) bool { return true }

// Info is what ffprobe reports about the first audio stream of a file.
type Info struct {
	SampleRate int
	Channels   int
	Duration   float64
	Tags       map[string]string
}

// LoopPoints extracts loop_start/loop_end tags (seconds) when both are
// present and sane. Trackers and game rips carry these.
func (info *Info) LoopPoints() (start, end float64, ok bool) {
	s, sok := lookupTag(info.Tags, "loop_start")
	e, eok := lookupTag(info.Tags, "loop_end")
	if !sok || !eok {
		return 0, 0, false
	}
	start, err1 := strconv.ParseFloat(s, 64)
	end, err2 := strconv.ParseFloat(e, 64)
	if err1 != nil || err2 != nil || start < 0 || end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func lookupTag(tags map[string]string, key string) (string, bool) {
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Probe inspects a file with ffprobe.
func (d *Decoder) Probe(path string) (*Info, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "a:0",
		path,
	}

	out, err := exec.Command(d.ffprobePath, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v", decode.ErrCorrupt, err)
	}

	var probe struct {
		Streams []struct {
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
		Format struct {
			Duration string            `json:"duration"`
			Tags     map[string]string `json:"tags"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %v", decode.ErrCorrupt, err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("%w: no audio stream", decode.ErrUnsupportedFormat)
	}

	info := &Info{
		Channels: probe.Streams[0].Channels,
		Tags:     probe.Format.Tags,
	}
	info.SampleRate, _ = strconv.Atoi(probe.Streams[0].SampleRate)
	if probe.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	}
	if info.SampleRate <= 0 || info.Channels <= 0 {
		return nil, fmt.Errorf("%w: stream reports rate=%d channels=%d",
			decode.ErrCorrupt, info.SampleRate, info.Channels)
	}
	return info, nil
}

// Open probes the file and starts an ffmpeg child emitting raw f32le PCM at
// the file's native rate and layout on stdout.
func (d *Decoder) Open(path string) (decode.Stream, error) {
	info, err := d.Probe(path)
	if err != nil {
		return nil, err
	}

	s := &stream{
		dec:  d,
		path: path,
		info: info,
	}
	if err := s.spawn(0); err != nil {
		return nil, err
	}
	return s, nil
}

type stream struct {
	dec  *Decoder
	path string
	info *Info

	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
}

func (s *stream) SampleRate() int   { return s.info.SampleRate }
func (s *stream) Channels() int     { return s.info.Channels }
func (s *stream) Duration() float64 { return s.info.Duration }

func (s *stream) LoopPoints() (start, end float64, ok bool) {
	return s.info.LoopPoints()
}

func (s *stream) spawn(startSec float64) error {
	args := []string{"-v", "error"}
	if startSec > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", startSec))
	}
	args = append(args,
		"-i", s.path,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(s.info.Channels),
		"-ar", strconv.Itoa(s.info.SampleRate),
		"-",
	)

	cmd := exec.Command(s.dec.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	return nil
}

func (s *stream) kill() {
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.cmd = nil
	s.stdout = nil
}

func (s *stream) ReadFrames(dst []float32) (int, error) {
	frames := len(dst) / s.info.Channels
	if frames == 0 {
		return 0, nil
	}
	need := frames * s.info.Channels * 4
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]

	n, err := io.ReadFull(s.stdout, s.buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, fmt.Errorf("%w: %v", decode.ErrCorruptFrame, err)
	}

	samples := n / 4
	for i := 0; i < samples; i++ {
		bits := binary.LittleEndian.Uint32(s.buf[4*i:])
		dst[i] = math.Float32frombits(bits)
	}

	got := samples / s.info.Channels
	if got == 0 {
		return 0, io.EOF
	}
	return got, nil
}

// Seek restarts the child with -ss. ffmpeg handles the demuxer-level seek,
// which is the only way to reposition a pipe decode.
func (s *stream) Seek(seconds float64) error {
	if seconds < 0 || (s.info.Duration > 0 && seconds > s.info.Duration) {
		return fmt.Errorf("%w: %.3fs", decode.ErrSeekOutOfRange, seconds)
	}
	s.kill()
	return s.spawn(seconds)
}

func (s *stream) Close() error {
	s.kill()
	return nil
}
