package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/lokutor-ai/assist-core/pkg/analysis"
	"github.com/lokutor-ai/assist-core/pkg/audio"
	"github.com/lokutor-ai/assist-core/pkg/bus"
	"github.com/lokutor-ai/assist-core/pkg/config"
	ctxstore "github.com/lokutor-ai/assist-core/pkg/context"
	"github.com/lokutor-ai/assist-core/pkg/logging"
	llmprovider "github.com/lokutor-ai/assist-core/pkg/providers/llm"
	"github.com/lokutor-ai/assist-core/pkg/response"
	"github.com/lokutor-ai/assist-core/pkg/session"
	"github.com/lokutor-ai/assist-core/pkg/transcription"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	configPath := flag.String("config", "assistant.yaml", "path to the assistant's YAML config file")
	flag.Parse()

	app, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.NewLogrus(logrus.StandardLogger())
	eventBus := bus.NewBus(logger)

	llmProvider, err := buildLLMProvider(app)
	if err != nil {
		log.Fatalf("build LLM provider: %v", err)
	}

	transport := transcription.NewWSTransport(os.Getenv("TRANSCRIPTION_ENDPOINT"), map[string]string{
		"Authorization": "Bearer " + os.Getenv("TRANSCRIPTION_API_KEY"),
	})

	ctxStore := ctxstore.NewStore(app.ContextStoreConfig(), eventBus, logger)

	registry := analysis.NewRegistry()
	engine := analysis.NewEngine(registry, analysis.Dependencies{LLM: llmProvider}, app.AnalysisConfig(), eventBus, logger, nil)
	defer engine.Stop()

	responseGen := response.NewGenerator(llmProvider, response.NewDefaultRegistry(), eventBus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	ctxStore.StartSweepLoop(sweepCtx, defaultSweepInterval)

	manager := session.NewManager(transport, ctxStore, engine, responseGen, eventBus, logger)

	sessCfg := session.Config{
		Audio:          app.AudioConfig(),
		Transcription:  app.TranscriptionConfig(),
		RetryPolicy:    app.RetryPolicy(),
		AnalysisConfig: config.StandardAnalysisPipeline(),
		ResponseConfig: app.ResponseConfig(),
		Role:           app.Role,
	}

	pipeline, err := manager.StartSession(ctx, "", sessCfg)
	if err != nil {
		log.Fatalf("start session: %v", err)
	}
	defer manager.Shutdown()

	fmt.Printf("Session %s started. Listening to microphone...\n", pipeline.ID())
	fmt.Println("Press Ctrl+C to exit")

	go printEvents(pipeline)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatalf("init audio context: %v", err)
	}
	defer mctx.Uninit()

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput == nil {
			return
		}
		chunk := make([]byte, len(pInput))
		copy(chunk, pInput)
		if err := pipeline.WriteAudio(chunk, audio.ChannelMic); err != nil {
			logger.Warn("write audio failed", "error", err)
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(app.AudioConfig().Channels)
	deviceConfig.SampleRate = uint32(app.AudioConfig().SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		log.Fatalf("init audio device: %v", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatalf("start audio device: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nShutting down...")
}

func printEvents(p *session.Pipeline) {
	for ev := range p.Events() {
		switch ev.Type {
		case session.EventTranscript:
			result := ev.Data.(transcription.Result)
			if !result.IsPartial {
				fmt.Printf("\r\033[K[TRANSCRIPT] %+v\n", result.Segments)
			}
		case session.EventAnalysis:
			fmt.Printf("\r\033[K[ANALYSIS] %d insights\n", len(ev.Data.(analysis.Result).Insights))
		case session.EventResponse:
			fmt.Printf("\r\033[K[RESPONSE] %s\n", ev.Data.(response.Result).Content)
		case session.EventInterrupt:
			fmt.Printf("\r\033[K[INTERRUPTED]\n")
		case session.EventError:
			fmt.Printf("\r\033[K[ERROR] %v\n", ev.Data)
		}
	}
}

func buildLLMProvider(app *config.App) (llmprovider.Provider, error) {
	switch app.LLM.Provider {
	case "openai", "":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for the openai LLM provider")
		}
		model := app.LLM.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return llmprovider.NewOpenAIProvider(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", app.LLM.Provider)
	}
}

// defaultSweepInterval matches spec.md §5's default background cleanup
// interval of 3600s.
const defaultSweepInterval = time.Hour
