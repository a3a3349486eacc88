package bootstrap

import (
	"net/http"

	"voicebook/internal/audio"
	"voicebook/internal/auth"
	"voicebook/internal/config"
	"voicebook/internal/logger"
	"voicebook/internal/player"
	"voicebook/internal/ports"
	"voicebook/internal/realtime"
	"voicebook/internal/transport"
	"voicebook/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.Controller
	Realtime   *realtime.Channel
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime. The HTTP and
// realtime layers share one token provider so both carry the same credential.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	log := logger.New()
	tokens := auth.NewStaticProvider(cfg.API.AccessToken)

	client := transport.NewClient(
		transport.Config{BaseURL: cfg.API.BaseURL},
		&http.Client{Timeout: cfg.API.RequestTimeout},
		tokens,
		log,
	)
	channel := realtime.NewChannel(
		realtime.Config{URL: cfg.Realtime.URL, ReconnectWait: cfg.Realtime.ReconnectWait},
		tokens,
		log,
	)
	recorder := audio.NewRecorder(audio.Config{
		Command:     cfg.Audio.RecorderCommand,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		MinDuration: cfg.Audio.MinCapture,
	}, log)
	speaker := player.NewExecPlayer(cfg.Player.Command, log)

	controller := usecase.NewController(
		recorder,
		client,
		channel,
		client,
		speaker,
		eventSink,
		usecase.Config{},
		log,
	)

	return Services{Controller: controller, Realtime: channel, Config: cfg}, nil
}
