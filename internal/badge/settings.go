package badge

import (
	"regexp"
	"time"
)

// Engine tunables arrive as free-form name/value pairs. Names must satisfy
// the identifier grammar and values one of the known shapes before anything
// reaches an engine command string; this is the injection barrier, on top of
// parameter binding where the engine supports it.
var (
	settingNameRe    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
	settingSizeRe    = regexp.MustCompile(`^[0-9]+ ?(B|kB|KB|MB|GB|TB)$`)
	settingTimeRe    = regexp.MustCompile(`^[0-9]+(ms|s|min|h|d)?$`)
	settingNumberRe  = regexp.MustCompile(`^-?[0-9]+$`)
	settingKeywordRe = regexp.MustCompile(`^[A-Za-z_]+$`)
)

// ValidateSettingName rejects names outside the identifier grammar
// (letters, digits, underscore, bounded length).
func ValidateSettingName(name string) error {
	if !settingNameRe.MatchString(name) {
		return Validationf("invalid setting name %q", name)
	}
	return nil
}

// ValidateSettingValue rejects values that are neither a size
// ("4MB", "256kB"), a duration with an allowed unit ("30s", "5min", a bare
// number), a plain number, nor a bare keyword ("on", "wal").
func ValidateSettingValue(name, value string) error {
	if settingSizeRe.MatchString(value) ||
		settingTimeRe.MatchString(value) ||
		settingNumberRe.MatchString(value) ||
		settingKeywordRe.MatchString(value) {
		return nil
	}
	return Validationf("invalid value %q for setting %q", value, name)
}

// ValidateSettings checks every pair before any setting is applied, so a
// single malformed entry fails the whole call without partial application.
func ValidateSettings(settings map[string]string) error {
	for name, value := range settings {
		if err := ValidateSettingName(name); err != nil {
			return err
		}
		if err := ValidateSettingValue(name, value); err != nil {
			return err
		}
	}
	return nil
}

// BackoffDelay returns the wait before retrying attempt number attempt
// (1-based): base * 2^(attempt-1). No delay precedes the first attempt.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return base
	}
	return base << (attempt - 1)
}
