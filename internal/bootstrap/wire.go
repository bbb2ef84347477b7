package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dixi/internal/audio"
	"dixi/internal/config"
	"dixi/internal/diagnostics"
	"dixi/internal/domain"
	"dixi/internal/ports"
	"dixi/internal/providers/deepgram"
	"dixi/internal/providers/openai"
	"dixi/internal/sensor"
	"dixi/internal/store"
	"dixi/internal/triggers"
	"dixi/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Recorder    *usecase.Recorder
	Player      *usecase.Player
	Pipeline    *usecase.Pipeline
	Shake       *usecase.ShakeTrigger
	Diagnostics *diagnostics.Server
	Store       store.Store
	Logger      *zap.Logger
	Config      config.Config
}

// Shell is what the desktop shell provides to the backend.
type Shell struct {
	Events      ports.EventSink
	Permissions ports.PermissionBroker
	OpenURL     triggers.OpenURLFunc
}

// Build wires all backend dependencies for the current runtime.
func Build(shell Shell) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return Services{}, fmt.Errorf("failed to create logger: %w", err)
	}

	var matcher ports.TriggerMatcher
	if cfg.Triggers.Enabled {
		m, err := triggers.NewMatcher(triggers.Options{
			EmergencyNumber: cfg.Triggers.EmergencyNumber,
			RulesPath:       cfg.Triggers.Path,
		})
		if err != nil {
			return Services{}, err
		}
		matcher = m
	}

	messages, err := newStore(cfg.Store)
	if err != nil {
		return Services{}, err
	}

	recorder := usecase.NewRecorder(
		shell.Permissions,
		audio.NewFFMPEGRecorder(cfg.Audio.RecorderCommand, cfg.Audio.ClipDir),
		shell.Events,
		logger,
		usecase.RecorderConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
		},
	)

	player := usecase.NewPlayer(
		audio.NewFFPlayBackend(cfg.Audio.PlayerCommand),
		audio.NewEspeakSpeech(cfg.Audio.SpeechCommand),
		shell.Events,
		logger,
		usecase.PlayerConfig{DefaultLocale: cfg.Playback.DefaultLocale},
	)

	chat := openai.NewClient(openai.Config{
		APIKey:             cfg.OpenAI.APIKey,
		BaseURL:            cfg.OpenAI.BaseURL,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		ChatModel:          cfg.OpenAI.ChatModel,
		MaxTokens:          cfg.OpenAI.MaxTokens,
		SystemPrompt:       cfg.OpenAI.SystemPrompt,
		Timeout:            cfg.OpenAI.Timeout,
	})

	var launcher ports.ActionLauncher
	if shell.OpenURL != nil {
		launcher = triggers.NewURLLauncher(cfg.Triggers.MapsURL, shell.OpenURL)
	}

	pipeline := usecase.NewPipeline(
		newTranscriber(cfg, chat),
		chat,
		chat,
		messages,
		player,
		matcher,
		launcher,
		shell.Events,
		logger,
		usecase.PipelineConfig{
			Mode:                  cfg.Chat.Mode,
			SourceLang:            cfg.Chat.SourceLang,
			TargetLang:            cfg.Chat.TargetLang,
			TranscriptionLanguage: cfg.Transcription.Language,
			Welcome:               cfg.Chat.Welcome,
		},
	)

	services := Services{
		Recorder: recorder,
		Player:   player,
		Pipeline: pipeline,
		Store:    messages,
		Logger:   logger,
		Config:   cfg,
	}

	if cfg.Shake.Enabled {
		accel, err := sensor.NewIIOAccelerometer(cfg.Shake.DevicePath, logger)
		if err != nil {
			logger.Warn("shake-to-record disabled", zap.Error(err))
		} else {
			services.Shake = usecase.NewShakeTrigger(accel, recorder, pipeline, logger, usecase.ShakeConfig{
				Threshold: cfg.Shake.Threshold,
				Debounce:  cfg.Shake.Debounce,
				AutoStop:  cfg.Shake.AutoStop,
				Interval:  cfg.Shake.Interval,
			})
		}
	}

	if cfg.Diagnostics.Addr != "" {
		services.Diagnostics = diagnostics.NewServer(cfg.Diagnostics.Addr, statusView{recorder: recorder, player: player, pipeline: pipeline}, logger)
	}

	return services, nil
}

// Start restores the message log and starts the optional background parts.
// Only the log restore is reported; the rest degrade to warnings.
func (s Services) Start(ctx context.Context) error {
	err := s.Pipeline.Load(ctx)

	if s.Shake != nil {
		if startErr := s.Shake.Start(ctx); startErr != nil {
			s.Logger.Warn("failed to start shake trigger", zap.Error(startErr))
		}
	}
	if s.Diagnostics != nil {
		if _, startErr := s.Diagnostics.Start(); startErr != nil {
			s.Logger.Warn("failed to start diagnostics", zap.Error(startErr))
		}
	}
	return err
}

// Close releases everything Build and Start acquired.
func (s Services) Close(ctx context.Context) error {
	var errs []error
	if s.Shake != nil {
		s.Shake.Close()
	}
	if s.Player != nil {
		s.Player.StopCurrentAudio(ctx)
	}
	if s.Recorder != nil && s.Recorder.Recording() {
		if err := s.Recorder.Abort(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Diagnostics != nil {
		if err := s.Diagnostics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Logger != nil {
		_ = s.Logger.Sync()
	}
	return errors.Join(errs...)
}

func newTranscriber(cfg config.Config, chat *openai.Client) ports.TranscriptionClient {
	if cfg.Transcription.Provider == config.TranscriptionProviderDeepgram {
		return deepgram.NewTranscriber(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
			ChunkSize:   cfg.Deepgram.ChunkSize,
			Timeout:     cfg.Deepgram.Timeout,
		})
	}
	return chat
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	opts := []store.StoreOption{store.WithKey(cfg.Key)}

	switch store.StoreType(cfg.Type) {
	case store.StoreTypeFile:
		opts = append(opts, store.WithFilePath(cfg.Path))
	case store.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		opts = append(opts, store.WithRedisClient(client), store.WithRedisTTL(cfg.RedisTTL))
	case store.StoreTypeSQLite:
		opts = append(opts, store.WithSQLiteDSN(cfg.SQLiteDSN))
	}

	return store.NewStore(store.StoreType(cfg.Type), opts...)
}

// statusView adapts the live components to the diagnostics status source.
type statusView struct {
	recorder *usecase.Recorder
	player   *usecase.Player
	pipeline *usecase.Pipeline
}

func (v statusView) RecorderStatus() domain.RecorderStatus {
	return v.recorder.Status()
}

func (v statusView) PlaybackStatus() domain.PlaybackStatus {
	return v.player.Status()
}

func (v statusView) Processing() bool {
	return v.pipeline.Busy()
}
