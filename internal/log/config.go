package log

// LoggerConfig is the `log:` section of the root configuration, loaded by
// internal/config via viper/mapstructure.
type LoggerConfig struct {
	Level     string              `mapstructure:"level"`
	Formatter *FormatterConfig    `mapstructure:"formatter,omitempty"`
	File      *FileAppenderOpt    `mapstructure:"file,omitempty"`
}

// FormatterConfig controls the logrus text formatter.
type FormatterConfig struct {
	EnableColors   bool `mapstructure:"enable_colors,omitempty"`
	FullTimestamp  bool `mapstructure:"full_timestamp,omitempty"`
	DisableSorting bool `mapstructure:"disable_sorting,omitempty"`
}
