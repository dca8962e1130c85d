package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
)

type FFProbeOutput struct {
	Streams []struct {
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		FrameRate      string `json:"r_frame_rate"`
		FrameCount     string `json:"nb_frames"`
		FrameCountRead string `json:"nb_read_frames"`
	} `json:"streams"`
}

type VideoInfo struct {
	InputPath  string
	Width      int
	Height     int
	FrameRate  float64
	FrameCount int64
}

func parseVideoInfoFFProbeOutput(output string) (*FFProbeOutput, error) {
	var probeOutput FFProbeOutput
	if err := json.Unmarshal([]byte(output), &probeOutput); err != nil {
		return nil, fmt.Errorf("parsing probe output: %v\n%v", err, output)
	}

	if len(probeOutput.Streams) == 0 {
		return nil, fmt.Errorf("no video streams found")
	}

	return &probeOutput, nil
}

func GetVideoInfo(ctx context.Context, inputPath string) (*VideoInfo, string, error) {
	cmd := NewCommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames",
		"-of", "json",
		inputPath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, output, err
	}

	ffprobeOutput, err := parseVideoInfoFFProbeOutput(output)
	if err != nil {
		return nil, output, err
	}

	mainStream := ffprobeOutput.Streams[0]
	parts := strings.Split(mainStream.FrameRate, "/")
	if len(parts) != 2 {
		return nil, output, fmt.Errorf("invalid framerate format")
	}

	num, err := strconv.ParseFloat(parts[0], 32)
	if err != nil {
		return nil, output, fmt.Errorf("parsing framerate numerator: %v", err)
	}

	den, err := strconv.ParseFloat(parts[1], 32)
	if err != nil {
		return nil, output, fmt.Errorf("parsing framerate denominator: %v", err)
	}

	var videoInfo VideoInfo
	videoInfo.InputPath = inputPath
	videoInfo.Width = mainStream.Width
	videoInfo.Height = mainStream.Height
	videoInfo.FrameRate = num / den

	if mainStream.FrameCount != "" && mainStream.FrameCount != "N/A" {
		// container already contains frame count, no need to count
		frameCount, err := strconv.ParseInt(mainStream.FrameCount, 10, 64)
		if err != nil {
			return nil, output, err
		}

		videoInfo.FrameCount = frameCount
		return &videoInfo, "", nil
	}

	// container doesn't have frame count, counting frames
	cmd = NewCommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=nb_read_frames",
		"-of", "json",
		inputPath)

	output, err = cmd.CombinedOutput()
	if err != nil {
		return nil, output, err
	}

	ffprobeCountOutput, err := parseVideoInfoFFProbeOutput(output)
	if err != nil {
		return nil, output, err
	}

	frameCount, err := strconv.ParseInt(ffprobeCountOutput.Streams[0].FrameCountRead, 10, 64)
	if err != nil {
		return nil, output, err
	}

	videoInfo.FrameCount = frameCount
	return &videoInfo, output, nil
}

func ExtractAudio(ctx context.Context, inputPath string, outputPath string) (string, error) {
	cmd := NewCommandContext(ctx, "ffmpeg", "-y", "-i", inputPath, "-vn", "-acodec", "copy", outputPath)
	return cmd.CombinedOutput()
}

// ExtractFrames dumps every frame of the input as a numbered png so the
// deflicker can be restarted without re-decoding the video.
func ExtractFrames(ctx context.Context, options FFmpegOptions, inputPath string, framesFolder string,
	progressChan chan<- float64) (string, error) {
	args := []string{"-y"}
	if options.HWAccelDecodeFlag != "" {
		args = append(args, "-hwaccel", options.HWAccelDecodeFlag)
	}

	args = append(args, "-i", inputPath,
		"-progress", "pipe:2",
		path.Join(framesFolder, "%06d.png"))

	cmd := NewCommandContext(ctx, "ffmpeg", args...)
	if progressChan != nil {
		go parseProgressFFmpeg(cmd.StderrReader(), progressChan)
	}

	return cmd.CombinedOutput()
}

// ConstructVideo re-encodes the deflickered frames back into a video,
// muxing in the audio track when one was extracted.
func ConstructVideo(ctx context.Context, options FFmpegOptions, framesFolder string, audioPath string,
	outputPath string, frameRate float64, progressChan chan<- float64) (string, error) {
	args := []string{
		"-y",
		"-framerate", fmt.Sprintf("%f", frameRate),
		"-i", path.Join(framesFolder, "%06d.png"),
	}

	hasAudio, _ := PathExist(audioPath)
	if hasAudio {
		args = append(args, "-i", audioPath)
	}

	if options.HWAccelEncodeFlag != "" {
		args = append(args, "-c:v", options.HWAccelEncodeFlag)
	} else {
		args = append(args, "-c:v", "libx264")
	}

	if hasAudio {
		args = append(args, "-c:a", "copy")
	}

	args = append(args,
		"-crf", "20",
		"-pix_fmt", "yuv420p",
		"-progress", "pipe:2",
		outputPath)

	cmd := NewCommandContext(ctx, "ffmpeg", args...)
	if progressChan != nil {
		go parseProgressFFmpeg(cmd.StderrReader(), progressChan)
	}

	return cmd.CombinedOutput()
}

var durationRegex = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2})\.(\d{2})`)

// TODO: handle errors in here
func parseProgressFFmpeg(stderr io.Reader, progressChan chan<- float64) {
	// Sole sender, closes the channel when ffmpeg's stderr drains
	defer close(progressChan)

	var totalDuration float64
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Capture the total duration from ffmpeg's initial output
		if matches := durationRegex.FindStringSubmatch(line); matches != nil && totalDuration == 0 {
			hours, _ := strconv.ParseFloat(matches[1], 64)
			minutes, _ := strconv.ParseFloat(matches[2], 64)
			seconds, _ := strconv.ParseFloat(matches[3], 64)
			totalDuration = hours*3600 + minutes*60 + seconds
		}

		// Parse the out_time_ms line to calculate progress
		if strings.HasPrefix(line, "out_time_ms=") {
			outTimeMs, _ := strconv.ParseFloat(strings.Split(line, "=")[1], 64)
			progressSeconds := outTimeMs / 1000000.0 // Convert ms to seconds

			// Calculate progress percentage
			if totalDuration > 0 {
				progressChan <- (progressSeconds / totalDuration) * 100
			}
		}
	}
}
