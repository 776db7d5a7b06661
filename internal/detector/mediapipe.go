package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// HandLocator finds the region of interest the classifier should look at.
type HandLocator interface {
	// Locate returns the bounding box of the most prominent hand, or nil.
	Locate(frame *gocv.Mat) (*image.Rectangle, error)
	Close() error
}

const handScriptName = "hand_locator.py"

// idleShutdown stops the Python process after this long without requests.
const idleShutdown = 30 * time.Second

// MediaPipeLocator implements HandLocator using a Python MediaPipe subprocess.
// Frames are written as a 4-byte big-endian length followed by JPEG bytes;
// the process answers with one JSON line per frame.
type MediaPipeLocator struct {
	scriptPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
	started    bool
	idleTimer  *time.Timer
}

// NewMediaPipeLocator creates a locator around scriptPath. An empty path
// searches the usual install locations. The Python process is started lazily
// on first use.
func NewMediaPipeLocator(scriptPath string) (*MediaPipeLocator, error) {
	if scriptPath == "" {
		scriptPath = findHandScript()
	}
	if scriptPath == "" {
		return nil, fmt.Errorf("%s not found", handScriptName)
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("hand locator script: %w", err)
	}

	return &MediaPipeLocator{scriptPath: scriptPath}, nil
}

// Locate sends frame to the subprocess and converts the first hand's
// landmarks into a pixel bounding box.
func (l *MediaPipeLocator) Locate(frame *gocv.Mat) (*image.Rectangle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := l.stdin.Write(length); err != nil {
		l.fail()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := l.stdin.Write(data); err != nil {
		l.fail()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := l.stdout.ReadString('\n')
	if err != nil {
		l.fail()
		return nil, fmt.Errorf("read response: %w", err)
	}

	hands, err := parseHands([]byte(line))
	if err != nil {
		return nil, err
	}

	l.resetIdleTimer()

	if len(hands) == 0 {
		return nil, nil
	}

	box := hands[0].BoundingBox(frame.Cols(), frame.Rows())
	return &box, nil
}

// Close shuts down the Python process.
func (l *MediaPipeLocator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shutdown()
}

func (l *MediaPipeLocator) ensureStarted() error {
	if l.started {
		return nil
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	l.cmd = exec.Command(pythonPath, l.scriptPath)

	stdin, err := l.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := l.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	l.cmd.Stderr = os.Stderr

	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("start hand locator: %w", err)
	}

	l.stdin = stdin
	l.stdout = bufio.NewReader(stdout)
	l.started = true
	slog.Debug("hand locator started", "python", pythonPath, "script", l.scriptPath)

	return nil
}

// fail tears the process down after a broken pipe so the next call restarts it.
func (l *MediaPipeLocator) fail() {
	if err := l.shutdown(); err != nil {
		slog.Warn("hand locator exited", "err", err)
	}
}

func (l *MediaPipeLocator) shutdown() error {
	if !l.started {
		return nil
	}

	if l.idleTimer != nil {
		l.idleTimer.Stop()
		l.idleTimer = nil
	}

	if l.stdin != nil {
		l.stdin.Close()
	}

	err := l.cmd.Wait()
	l.started = false
	l.cmd = nil
	l.stdin = nil
	l.stdout = nil

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("hand locator: %w", err)
	}
	return err
}

func (l *MediaPipeLocator) resetIdleTimer() {
	if l.idleTimer != nil {
		l.idleTimer.Stop()
	}
	l.idleTimer = time.AfterFunc(idleShutdown, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.shutdown()
	})
}

func findHandScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", handScriptName),
		filepath.Join("..", "scripts", handScriptName),
		filepath.Join(execDir, "scripts", handScriptName),
		filepath.Join(os.Getenv("HOME"), ".photobooth", "scripts", handScriptName),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".photobooth/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func parseHands(line []byte) ([]HandLandmarks, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("hand locator: %s", response.Error)
	}

	hands := make([]HandLandmarks, 0, len(response.Hands))
	for _, h := range response.Hands {
		if len(h.Points) == 0 {
			continue
		}
		lm := HandLandmarks{Handedness: h.Handedness, Score: h.Score}
		for i := 0; i < NumLandmarks; i++ {
			// Short landmark lists repeat the last point so the box stays tight.
			lm.Points[i] = h.Points[min(i, len(h.Points)-1)]
		}
		hands = append(hands, lm)
	}
	return hands, nil
}
