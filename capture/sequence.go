package capture

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrNoFrames is returned when a frame directory holds no images.
var ErrNoFrames = errors.New("no frame images found")

// FrameFile is one recorded frame on disk.
type FrameFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw encoded bytes.
	Data []byte
	// Frame is the frame number parsed from the file name.
	Frame int
}

// LoadFrameFiles reads every image named frame-<n>.<ext> from dir, ordered by
// frame number. Supported extensions are .jpg, .jpeg, .png and .bmp; other
// files are skipped.
//
// Arguments:
//   - dir: Directory containing the recorded frames.
//
// Returns:
//   - []FrameFile: The frames in playback order.
//   - error: An error if the directory cannot be read or a frame name has no number.
func LoadFrameFiles(dir string) ([]FrameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read frame directory %s", dir)
	}

	var frames []FrameFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".bmp":
		default:
			continue
		}

		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSuffix(name, filepath.Ext(name)), "frame-"))
		if err != nil {
			return nil, errors.Wrapf(err, "frame number of %s", name)
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read frame %s", path)
		}
		frames = append(frames, FrameFile{Path: path, Data: data, Frame: n})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Frame < frames[j].Frame
	})
	return frames, nil
}

// SequenceSource plays back recorded frames as a camera stream.
type SequenceSource struct {
	mu     sync.Mutex
	frames []FrameFile
	next   int
	loop   bool
	closed bool
}

// NewSequenceSource creates a source over frames. With loop set, playback restarts
// at the first frame after the last one; otherwise reads fail at the end.
func NewSequenceSource(frames []FrameFile, loop bool) *SequenceSource {
	return &SequenceSource{frames: frames, loop: loop}
}

// SequenceOpener returns an Opener that plays the frames recorded in dir. The
// directory is read on every open, so switching devices restarts playback.
func SequenceOpener(dir string, loop bool) Opener {
	return func(int) (Source, error) {
		frames, err := LoadFrameFiles(dir)
		if err != nil {
			return nil, err
		}
		if len(frames) == 0 {
			return nil, errors.Wrap(ErrNoFrames, dir)
		}
		return NewSequenceSource(frames, loop), nil
	}
}

// Len returns the number of frames in the sequence.
func (s *SequenceSource) Len() int {
	return len(s.frames)
}

// Read decodes the next frame into m as BGR.
func (s *SequenceSource) Read(m *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.frames) == 0 {
		return false
	}
	if s.next >= len(s.frames) {
		if !s.loop {
			return false
		}
		s.next = 0
	}

	f := s.frames[s.next]
	s.next++

	decoded, err := gocv.IMDecode(f.Data, gocv.IMReadColor)
	if err != nil {
		return false
	}
	defer decoded.Close()
	if decoded.Empty() {
		return false
	}
	decoded.CopyTo(m)
	return true
}

// Close ends playback.
func (s *SequenceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
