package httputil

import (
	"path"
	"regexp"
)

// Channel names are 1-256 characters without whitespace or control bytes.
var channelRegex = regexp.MustCompile(`^[\x21-\x7e]{1,256}$`)

// ValidateChannelName reports whether name can be subscribed to or
// published on.
func ValidateChannelName(name string) bool {
	return channelRegex.MatchString(name)
}

// ValidatePattern reports whether pattern is a well-formed glob channel
// pattern.
func ValidatePattern(pattern string) bool {
	if !channelRegex.MatchString(pattern) {
		return false
	}
	_, err := path.Match(pattern, "")
	return err == nil
}
