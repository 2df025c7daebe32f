package sender

import (
	"strings"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
)

// transientMarkers are provider error fragments worth a retry.
var transientMarkers = []string{
	"resource-exhausted",
	"resource_exhausted",
	"unavailable",
	"internal",
	"deadline-exceeded",
	"deadline_exceeded",
	"quota",
	"timeout",
	"deadline exceeded",
	"status 429",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
}

// invalidMarkers identify registrations the provider has confirmed dead.
var invalidMarkers = []string{
	"unregistered",
	"not-registered",
	"notregistered",
	"registration-token-not-registered",
	"invalidregistration",
	"not_found",
	"not found",
}

// Classify maps a per-token send error onto an outcome. Only invalid
// outcomes are eligible for token deletion, so the invalid patterns are
// deliberately narrow: an ambiguous error classifies as other and keeps the
// token.
func Classify(err error) models.Outcome {
	if err == nil {
		return models.OutcomeSuccess
	}
	text := strings.ToLower(err.Error())

	for _, marker := range invalidMarkers {
		if strings.Contains(text, marker) {
			return models.OutcomeInvalid
		}
	}
	// invalid-argument only counts as invalid when the provider is
	// complaining about the token/registration field itself.
	if strings.Contains(text, "invalid-argument") || strings.Contains(text, "invalid_argument") {
		if strings.Contains(text, "token") || strings.Contains(text, "registration") {
			return models.OutcomeInvalid
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return models.OutcomeTransient
		}
	}
	return models.OutcomeOther
}
