package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd        []string
	audioDir   string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Dialect    string `json:"dialect"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecSynth runs an external command per page. The command reads a JSON
// request on stdin and writes JSON lines with base64 16-bit PCM on stdout;
// the collected PCM is written as a WAV file under audioDir.
func NewExecSynth(command, audioDir string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, audioDir: audioDir, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (Artifact, error) {
	// One synthesis at a time; external engines rarely tolerate concurrency.
	e.mu.Lock()
	defer e.mu.Unlock()

	pcm, err := e.run(ctx, req)
	if err != nil {
		return Artifact{}, err
	}
	if len(pcm) == 0 {
		return Artifact{}, fmt.Errorf("tts command produced no audio")
	}

	filename := fmt.Sprintf("%s_page_%d.wav", req.SessionID, req.PageIndex)
	if err := e.writeWAV(filepath.Join(e.audioDir, filename), pcm); err != nil {
		return Artifact{}, err
	}
	return Artifact{Ref: "/audio/" + filename, Format: "wav"}, nil
}

func (e *execSynth) run(ctx context.Context, req Request) ([]byte, error) {
	payload, err := json.Marshal(execRequest{
		Text:       req.Text,
		Dialect:    req.Dialect,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	if _, err := stdin.Write(payload); err != nil {
		cmd.Wait()
		return nil, err
	}
	stdin.Close()

	var pcm []byte
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return nil, err
		}
		chunk, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			cmd.Wait()
			return nil, err
		}
		pcm = append(pcm, chunk...)
		if resp.Final {
			break
		}
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("tts command: %w", err)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pcm, nil
}

func (e *execSynth) writeWAV(path string, pcm []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
	}

	enc := wav.NewEncoder(f, e.sampleRate, 16, e.channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: e.channels, SampleRate: e.sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}
