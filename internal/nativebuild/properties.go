package nativebuild

import (
	"maps"
	"slices"
	"strings"

	"github.com/Norgate-AV/aotc/internal/compiler"
)

// Properties recognised as build switches instead of being passed to the
// image builder's JVM
const (
	sslNativeProperty           = "ssl.native"
	jniEnableProperty           = "jni.enable"
	allSecurityServicesProperty = "native.enable-all-security-services"
	allCharsetsProperty         = "native.enable-all-charsets"
	allTimeZonesProperty        = "native.enable-all-timezones"
)

// SystemProperty is a build-time system property. A property without a
// value is passed as -J-Dkey.
type SystemProperty struct {
	Key   string
	Value string
}

// ParseSystemProperty splits key=value. Without '=' the property has no value.
func ParseSystemProperty(s string) SystemProperty {
	key, value, _ := strings.Cut(s, "=")
	return SystemProperty{Key: strings.TrimSpace(key), Value: value}
}

// PropertiesFromMap converts a key to value map into properties
func PropertiesFromMap(m map[string]string) []SystemProperty {
	props := make([]SystemProperty, 0, len(m))
	for _, key := range slices.Sorted(maps.Keys(m)) {
		props = append(props, SystemProperty{Key: key, Value: m[key]})
	}

	return props
}

func (p SystemProperty) arg() string {
	if p.Value == "" {
		return "-J-D" + p.Key
	}

	return "-J-D" + p.Key + "=" + p.Value
}

// featureFlags are the switches system properties can turn on on top of
// the configuration
type featureFlags struct {
	httpsURLHandler     bool
	allSecurityServices bool
	allCharsets         bool
	allTimeZones        bool
}

// applySystemProperties passes properties to the builder in key order and
// returns the switches they enable
func (s *Step) applySystemProperties(b *compiler.VerifiedBuilder, props []SystemProperty) featureFlags {
	flags := featureFlags{
		httpsURLHandler:     s.cfg.EnableHTTPSURLHandler,
		allSecurityServices: s.cfg.EnableAllSecurityServices,
		allCharsets:         s.cfg.AddAllCharsets,
	}

	sorted := slices.Clone(props)
	slices.SortStableFunc(sorted, func(a, b SystemProperty) int {
		return strings.Compare(a.Key, b.Key)
	})

	sslNative := false

	for _, prop := range sorted {
		switch prop.Key {
		case sslNativeProperty:
			sslNative = parseBool(prop.Value)
		case jniEnableProperty:
			if prop.Value == "false" {
				s.logger.Warn("jni.enable is deprecated and ignored, JNI is always enabled")
			} else {
				b.Impact(prop.arg())
			}
		case allSecurityServicesProperty:
			flags.allSecurityServices = flags.allSecurityServices || parseBool(prop.Value)
		case allCharsetsProperty:
			flags.allCharsets = flags.allCharsets || parseBool(prop.Value)
		case allTimeZonesProperty:
			flags.allTimeZones = parseBool(prop.Value)
		default:
			b.Impact(prop.arg())
		}
	}

	if sslNative {
		flags.httpsURLHandler = true
		flags.allSecurityServices = true
	}

	return flags
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
