package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/latoulicious/Sasayaki/internal/config"
	"github.com/latoulicious/Sasayaki/pkg/audio"
	"github.com/latoulicious/Sasayaki/pkg/capture"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Records from the configured microphone and reports whether the capture
// chain works before an interview starts.
func main() {
	configPath := flag.String("config", "", "path to the config file")
	duration := flag.Duration("duration", 5*time.Second, "how long to record")
	output := flag.String("out", "capturecheck.wav", "where to write the recording")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The check does not need the API keys the full config may require
		fmt.Printf("⚠️  Config did not validate (%v), using defaults\n", err)
		cfg = config.Default()
	}
	deviceCfg := cfg.Capture.Device.DeviceConfig
	deviceCfg.ChunkDuration = 500 * time.Millisecond

	fmt.Println("Testing Sasayaki capture components...")

	fmt.Println("\n1. Testing FFmpeg...")
	ffmpeg := deviceCfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpeg); err != nil {
		fmt.Println("❌ FFmpeg not found. Please install it first.")
		os.Exit(1)
	}
	fmt.Println("✅ FFmpeg is available")

	fmt.Printf("\n2. Recording %s from the microphone...\n", *duration)
	device, err := capture.NewDeviceCapture(deviceCfg, pipeline.NullLogger())
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration+5*time.Second)
	defer cancel()

	if err := device.Start(ctx); err != nil {
		fmt.Printf("❌ Failed to start capture: %v\n", err)
		os.Exit(1)
	}

	var pcm []byte
	deadline := time.Now().Add(*duration)
	for time.Now().Before(deadline) {
		pcm = append(pcm, device.PullAvailableData()...)
		if !device.IsCapturing() && device.ExitError() != nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	capturing := device.IsCapturing()
	_ = device.Stop()
	pcm = append(pcm, device.PullAvailableData()...)

	if exitErr := device.ExitError(); exitErr != nil && len(pcm) == 0 {
		fmt.Printf("❌ Recorder exited: %v\n", exitErr)
		os.Exit(1)
	}
	if len(pcm) == 0 {
		fmt.Println("❌ No audio captured. Check the device name and permissions.")
		os.Exit(1)
	}
	fmt.Printf("✅ Captured %.1fs of audio (still capturing at the end: %t, dropped %d bytes)\n",
		float64(len(pcm))/float64(audio.SpeechFormat.BytesPerSecond()), capturing, device.DroppedBytes())

	fmt.Println("\n3. Checking the input level...")
	level := audio.RMS(pcm)
	if level < cfg.OpenAI.SilenceLevel {
		fmt.Printf("⚠️  Level %.4f is below the silence level %.4f; speech would be skipped\n", level, cfg.OpenAI.SilenceLevel)
	} else {
		fmt.Printf("✅ Level %.4f\n", level)
	}

	fmt.Println("\n4. Writing the recording...")
	wav, err := audio.EncodeWAV(pcm, audio.SpeechFormat)
	if err != nil {
		fmt.Printf("❌ Failed to encode WAV: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, wav, 0o644); err != nil {
		fmt.Printf("❌ Failed to write %s: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Printf("✅ Wrote %s\n", *output)
}
