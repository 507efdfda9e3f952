package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/errcode"
)

// CanonicalConfig provides application-wide access to configuration
// fields, plus loading and file-watching logic for the config file.
// All values are consumed by the core, never owned by it.
type CanonicalConfig struct {
	Button  ButtonConfig
	Token   TokenConfig
	Battery BatteryConfig
	LED     LEDConfig
	Calm    CalmConfig
	Sleep   SleepConfig
	Errors  ErrorsConfig
	Audio   AudioConfig
	Volume  VolumeConfig

	logger             *zap.SugaredLogger
	stopWatcherChannel chan bool
	reloadConsumers    []chan bool

	v *viper.Viper
}

type ButtonConfig struct {
	DebounceFloor   time.Duration
	LongPress       time.Duration
	DoubleTapWindow time.Duration
	Cooldown        time.Duration
}

type TokenConfig struct {
	CollapseWindow time.Duration
	PollInterval   time.Duration
}

type BatteryConfig struct {
	SampleInterval         time.Duration
	LowVolts               float64
	CriticalVolts          float64
	LowRecoveryMargin      float64
	CriticalRecoveryMargin float64
	ADCScale               float64 // volts at a full-scale analog reading
	Channel                int
}

type LEDConfig struct {
	TickHz int
}

// CalmConfig bounds the nightly calm window as minutes of day.
// The window wraps midnight when StartMinute > EndMinute.
type CalmConfig struct {
	StartMinute int
	EndMinute   int
}

type SleepConfig struct {
	IdleTimeout time.Duration
}

type ErrorsConfig struct {
	EscalationThreshold int
}

type AudioConfig struct {
	CardsDir      string
	BGMDir        string
	StoriesDir    string
	NarrationGain float64
	BGMIntroGain  float64
	BGMDuckGain   float64
	BGMOutroGain  float64
	Fade          time.Duration
	ShutdownFade  time.Duration
}

type VolumeConfig struct {
	Channel        int
	SampleInterval time.Duration
	Min            float64
	Max            float64
}

const (
	configName = "config"
	configType = "yaml"

	keyButtonDebounceFloorMs = "button.debounce_floor_ms"
	keyButtonLongPressMs     = "button.long_press_ms"
	keyButtonDoubleTapMs     = "button.double_tap_window_ms"
	keyButtonCooldownMs      = "button.cooldown_ms"

	keyTokenCollapseMs = "token.collapse_window_ms"
	keyTokenPollMs     = "token.poll_ms"

	keyBatterySampleS          = "battery.sample_interval_s"
	keyBatteryLowV             = "battery.low_v"
	keyBatteryCriticalV        = "battery.critical_v"
	keyBatteryLowMarginV       = "battery.low_recovery_margin_v"
	keyBatteryCriticalMarginV  = "battery.critical_recovery_margin_v"
	keyBatteryADCScale         = "battery.adc_scale"
	keyBatteryChannel          = "battery.channel"
	keyLEDTickHz               = "led.tick_hz"
	keyCalmStart               = "calm.start"
	keyCalmEnd                 = "calm.end"
	keySleepIdleTimeoutMin     = "sleep.idle_timeout_min"
	keyErrorsEscalation        = "errors.escalation_threshold"
	keyAudioCardsDir           = "audio.cards_dir"
	keyAudioBGMDir             = "audio.bgm_dir"
	keyAudioStoriesDir         = "audio.stories_dir"
	keyAudioNarrationGain      = "audio.narration_gain"
	keyAudioBGMIntroGain       = "audio.bgm_intro_gain"
	keyAudioBGMDuckGain        = "audio.bgm_duck_gain"
	keyAudioBGMOutroGain       = "audio.bgm_outro_gain"
	keyAudioFadeMs             = "audio.fade_ms"
	keyAudioShutdownFadeMs     = "audio.shutdown_fade_ms"
	keyVolumeChannel           = "volume.channel"
	keyVolumeSampleMs          = "volume.sample_interval_ms"
	keyVolumeMin               = "volume.min"
	keyVolumeMax               = "volume.max"
)

// NewConfig creates a config instance and sets up its viper backing.
// path may name a config file directly or a directory to search for
// config.yaml; a directory without one runs on defaults. An empty
// path means defaults only.
func NewConfig(logger *zap.SugaredLogger, path string) *CanonicalConfig {
	logger = logger.Named("config")

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if path != "" {
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			v.AddConfigPath(path)
		} else {
			v.SetConfigFile(path)
		}
	}

	v.SetDefault(keyButtonDebounceFloorMs, 20)
	v.SetDefault(keyButtonLongPressMs, 1500)
	v.SetDefault(keyButtonDoubleTapMs, 400)
	v.SetDefault(keyButtonCooldownMs, 2000)
	v.SetDefault(keyTokenCollapseMs, 1000)
	v.SetDefault(keyTokenPollMs, 150)
	v.SetDefault(keyBatterySampleS, 10)
	v.SetDefault(keyBatteryLowV, 3.5)
	v.SetDefault(keyBatteryCriticalV, 3.3)
	v.SetDefault(keyBatteryLowMarginV, 0.1)
	v.SetDefault(keyBatteryCriticalMarginV, 0.05)
	v.SetDefault(keyBatteryADCScale, 4.2)
	v.SetDefault(keyBatteryChannel, 1)
	v.SetDefault(keyLEDTickHz, 50)
	v.SetDefault(keyCalmStart, "20:30")
	v.SetDefault(keyCalmEnd, "06:30")
	v.SetDefault(keySleepIdleTimeoutMin, 30)
	v.SetDefault(keyErrorsEscalation, 5)
	v.SetDefault(keyAudioCardsDir, "cards")
	v.SetDefault(keyAudioBGMDir, "bgm")
	v.SetDefault(keyAudioStoriesDir, "stories")
	v.SetDefault(keyAudioNarrationGain, 1.0)
	v.SetDefault(keyAudioBGMIntroGain, 0.7)
	v.SetDefault(keyAudioBGMDuckGain, 0.1)
	v.SetDefault(keyAudioBGMOutroGain, 0.2)
	v.SetDefault(keyAudioFadeMs, 1500)
	v.SetDefault(keyAudioShutdownFadeMs, 800)
	v.SetDefault(keyVolumeChannel, 0)
	v.SetDefault(keyVolumeSampleMs, 200)
	v.SetDefault(keyVolumeMin, 0.1)
	v.SetDefault(keyVolumeMax, 0.9)

	return &CanonicalConfig{
		logger:             logger,
		stopWatcherChannel: make(chan bool),
		reloadConsumers:    []chan bool{},
		v:                  v,
	}
}

// Load reads the config file from disk (if one was given), populates
// the canonical fields and validates them. Validation failures are
// fatal by design: a misconfigured appliance must not half-start.
func (cc *CanonicalConfig) Load() error {
	if file := cc.v.ConfigFileUsed(); file != "" {
		// An explicitly named file must exist.
		if _, err := os.Stat(file); err != nil {
			return &errcode.E{C: errcode.ConfigError, Op: "load", Msg: "config file doesn't exist: " + file}
		}
		if err := cc.v.ReadInConfig(); err != nil {
			cc.logger.Warnw("Viper failed to read config", "error", err)
			return &errcode.E{C: errcode.ConfigError, Op: "load", Msg: "read config", Err: err}
		}
	} else {
		// Directory search: a directory without a config file runs
		// on defaults.
		err := cc.v.ReadInConfig()
		var notFound viper.ConfigFileNotFoundError
		switch {
		case err == nil:
		case errors.As(err, &notFound):
			cc.logger.Infow("No config file found, using defaults")
		default:
			cc.logger.Warnw("Viper failed to read config", "error", err)
			return &errcode.E{C: errcode.ConfigError, Op: "load", Msg: "read config", Err: err}
		}
	}

	if err := cc.populateFromViper(); err != nil {
		return err
	}

	cc.logger.Infow("Loaded config",
		"longPress", cc.Button.LongPress,
		"doubleTapWindow", cc.Button.DoubleTapWindow,
		"batteryLowV", cc.Battery.LowVolts,
		"batteryCriticalV", cc.Battery.CriticalVolts,
		"ledTickHz", cc.LED.TickHz,
		"idleTimeout", cc.Sleep.IdleTimeout)

	return nil
}

// SubscribeToChanges allows external components to receive updates when
// the config is reloaded.
func (cc *CanonicalConfig) SubscribeToChanges() chan bool {
	c := make(chan bool)
	cc.reloadConsumers = append(cc.reloadConsumers, c)
	return c
}

// WatchConfigFileChanges starts watching the configuration file and
// reloads on writes. It blocks until StopWatchingConfigFile is called.
func (cc *CanonicalConfig) WatchConfigFileChanges() {
	if cc.v.ConfigFileUsed() == "" {
		<-cc.stopWatcherChannel
		return
	}

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	cc.v.WatchConfig()
	cc.v.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&fsnotify.Write == fsnotify.Write {
			now := time.Now()
			if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {
				<-time.After(delayBetweenEventAndReload)

				if err := cc.Load(); err != nil {
					cc.logger.Warnw("Failed to reload config file", "error", err)
				} else {
					cc.logger.Info("Reloaded config successfully")
					cc.onConfigReloaded()
				}

				lastAttemptedReload = now
			}
		}
	})

	<-cc.stopWatcherChannel
	cc.v.OnConfigChange(nil)
}

// StopWatchingConfigFile signals the filesystem watcher to stop.
func (cc *CanonicalConfig) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true
}

func (cc *CanonicalConfig) onConfigReloaded() {
	for _, consumer := range cc.reloadConsumers {
		select {
		case consumer <- true:
		default:
		}
	}
}

func (cc *CanonicalConfig) populateFromViper() error {
	ms := func(key string) time.Duration { return time.Duration(cc.v.GetInt(key)) * time.Millisecond }

	cc.Button = ButtonConfig{
		DebounceFloor:   ms(keyButtonDebounceFloorMs),
		LongPress:       ms(keyButtonLongPressMs),
		DoubleTapWindow: ms(keyButtonDoubleTapMs),
		Cooldown:        ms(keyButtonCooldownMs),
	}
	cc.Token = TokenConfig{
		CollapseWindow: ms(keyTokenCollapseMs),
		PollInterval:   ms(keyTokenPollMs),
	}
	cc.Battery = BatteryConfig{
		SampleInterval:         time.Duration(cc.v.GetInt(keyBatterySampleS)) * time.Second,
		LowVolts:               cc.v.GetFloat64(keyBatteryLowV),
		CriticalVolts:          cc.v.GetFloat64(keyBatteryCriticalV),
		LowRecoveryMargin:      cc.v.GetFloat64(keyBatteryLowMarginV),
		CriticalRecoveryMargin: cc.v.GetFloat64(keyBatteryCriticalMarginV),
		ADCScale:               cc.v.GetFloat64(keyBatteryADCScale),
		Channel:                cc.v.GetInt(keyBatteryChannel),
	}
	cc.LED = LEDConfig{TickHz: cc.v.GetInt(keyLEDTickHz)}

	start, err := parseClock(cc.v.GetString(keyCalmStart))
	if err != nil {
		return &errcode.E{C: errcode.ConfigError, Op: "populate", Msg: "calm.start", Err: err}
	}
	end, err := parseClock(cc.v.GetString(keyCalmEnd))
	if err != nil {
		return &errcode.E{C: errcode.ConfigError, Op: "populate", Msg: "calm.end", Err: err}
	}
	cc.Calm = CalmConfig{StartMinute: start, EndMinute: end}

	cc.Sleep = SleepConfig{IdleTimeout: time.Duration(cc.v.GetInt(keySleepIdleTimeoutMin)) * time.Minute}
	cc.Errors = ErrorsConfig{EscalationThreshold: cc.v.GetInt(keyErrorsEscalation)}
	cc.Audio = AudioConfig{
		CardsDir:      cc.v.GetString(keyAudioCardsDir),
		BGMDir:        cc.v.GetString(keyAudioBGMDir),
		StoriesDir:    cc.v.GetString(keyAudioStoriesDir),
		NarrationGain: cc.v.GetFloat64(keyAudioNarrationGain),
		BGMIntroGain:  cc.v.GetFloat64(keyAudioBGMIntroGain),
		BGMDuckGain:   cc.v.GetFloat64(keyAudioBGMDuckGain),
		BGMOutroGain:  cc.v.GetFloat64(keyAudioBGMOutroGain),
		Fade:          ms(keyAudioFadeMs),
		ShutdownFade:  ms(keyAudioShutdownFadeMs),
	}
	cc.Volume = VolumeConfig{
		Channel:        cc.v.GetInt(keyVolumeChannel),
		SampleInterval: ms(keyVolumeSampleMs),
		Min:            cc.v.GetFloat64(keyVolumeMin),
		Max:            cc.v.GetFloat64(keyVolumeMax),
	}

	return cc.validate()
}

func (cc *CanonicalConfig) validate() error {
	fail := func(msg string) error {
		return &errcode.E{C: errcode.ConfigError, Op: "validate", Msg: msg}
	}

	if cc.Button.DebounceFloor <= 0 || cc.Button.DebounceFloor >= cc.Button.LongPress {
		return fail("button.debounce_floor_ms must be positive and below the long-press threshold")
	}
	if cc.Button.LongPress < 500*time.Millisecond || cc.Button.LongPress > 10*time.Second {
		return fail("button.long_press_ms out of range")
	}
	if cc.Button.DoubleTapWindow <= 0 {
		return fail("button.double_tap_window_ms must be positive")
	}
	if cc.Token.CollapseWindow <= 0 || cc.Token.PollInterval <= 0 {
		return fail("token windows must be positive")
	}
	if cc.Battery.CriticalVolts >= cc.Battery.LowVolts {
		return fail("battery.critical_v must be below battery.low_v")
	}
	if cc.Battery.LowRecoveryMargin <= 0 || cc.Battery.CriticalRecoveryMargin <= 0 {
		return fail("battery recovery margins must be positive")
	}
	if cc.Battery.ADCScale <= 0 {
		return fail("battery.adc_scale must be positive")
	}
	if cc.LED.TickHz < 20 {
		return fail("led.tick_hz must be at least 20")
	}
	if cc.Sleep.IdleTimeout <= 0 {
		return fail("sleep.idle_timeout_min must be positive")
	}
	if cc.Errors.EscalationThreshold < 1 {
		return fail("errors.escalation_threshold must be at least 1")
	}
	if cc.Volume.Min < 0 || cc.Volume.Max > 1 || cc.Volume.Min >= cc.Volume.Max {
		return fail("volume.min/volume.max must satisfy 0 <= min < max <= 1")
	}
	for _, g := range []float64{cc.Audio.NarrationGain, cc.Audio.BGMIntroGain, cc.Audio.BGMDuckGain, cc.Audio.BGMOutroGain} {
		if g < 0 || g > 1 {
			return fail("audio gains must be within 0..1")
		}
	}
	if cc.Audio.BGMDuckGain >= cc.Audio.NarrationGain {
		return fail("audio.bgm_duck_gain must stay below audio.narration_gain")
	}
	return nil
}

// parseClock parses "HH:MM" into minutes of day.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
