package config

const (
	defaultConfigPath              = "~/.config/rorsync/config.toml"
	defaultLogDir                  = "~/.local/share/rorsync/logs"
	defaultOutputFile              = "output.csv"
	defaultRegistryNameLocale      = "en_GB"
	defaultRegistryPageSize        = 100
	defaultRegistryStartupFailures = 5
	defaultRegistryTimeoutSeconds  = 30
	defaultMatcherBaseURL          = "https://api.ror.org"
	defaultMatcherTimeoutSeconds   = 30
	defaultMatcherMaxRequests      = 2000
	defaultMatcherWindowSeconds    = 300
	defaultOutputDelimiter         = ","
	defaultIdentifierTypeURI       = "/dk/atira/pure/ueoexternalorganisation/ueoexternalorganisationsources/ror"
	defaultIdentifierDiscriminator = "ClassifiedId"
	defaultIdentifierTermLabel     = "ROR ID"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:     defaultLogDir,
			OutputFile: defaultOutputFile,
		},
		Registry: Registry{
			NameLocale:         defaultRegistryNameLocale,
			PageSize:           defaultRegistryPageSize,
			MaxStartupFailures: defaultRegistryStartupFailures,
			TimeoutSeconds:     defaultRegistryTimeoutSeconds,
		},
		Matcher: Matcher{
			BaseURL:        defaultMatcherBaseURL,
			TimeoutSeconds: defaultMatcherTimeoutSeconds,
			MaxRequests:    defaultMatcherMaxRequests,
			WindowSeconds:  defaultMatcherWindowSeconds,
		},
		MatchCache: MatchCache{
			Path: defaultMatchCachePath(),
		},
		CSV: CSV{
			OutputDelimiter: defaultOutputDelimiter,
		},
		Identifier: Identifier{
			TypeURI:           defaultIdentifierTypeURI,
			TypeDiscriminator: defaultIdentifierDiscriminator,
			Terms:             defaultIdentifierTerms(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultIdentifierTerms() map[string]string {
	return map[string]string{
		"en_GB": defaultIdentifierTermLabel,
		"da_DK": defaultIdentifierTermLabel,
	}
}
