package compliance

import (
	"fmt"
	"strings"
)

// DisclaimerLevel represents the verbosity of the disclaimer.
type DisclaimerLevel string

const (
	// DisclaimerShort is the shortest disclaimer.
	DisclaimerShort DisclaimerLevel = "short"
	// DisclaimerMedium is a moderate disclaimer.
	DisclaimerMedium DisclaimerLevel = "medium"
	// DisclaimerFull is the most comprehensive disclaimer.
	DisclaimerFull DisclaimerLevel = "full"
)

// Disclaimer templates
const (
	disclaimerShortText = "AI-extracted data. Verify against source reports."

	disclaimerMediumText = "Lesion measurements in this document were extracted by an automated system. Verify against the source radiology reports before clinical use."

	disclaimerFullText = "Lesion measurements and identities in this document were extracted and matched by an automated system. They are intended to assist review and are not a substitute for reading the source radiology reports. A licensed clinician must verify all values before any clinical decision."
)

// DisclaimerConfig configures the disclaimer service.
type DisclaimerConfig struct {
	// Level determines which disclaimer template to use.
	Level DisclaimerLevel
	// Enabled controls whether disclaimers are added.
	Enabled bool
	// CustomText overrides the default template.
	CustomText string
}

// DefaultDisclaimerConfig returns sensible defaults.
func DefaultDisclaimerConfig() DisclaimerConfig {
	return DisclaimerConfig{
		Level:   DisclaimerMedium,
		Enabled: true,
	}
}

// DisclaimerService appends provenance disclaimers to exported documents.
type DisclaimerService struct {
	config DisclaimerConfig
}

// NewDisclaimerService creates a new disclaimer service.
func NewDisclaimerService(config DisclaimerConfig) *DisclaimerService {
	return &DisclaimerService{config: config}
}

// GetDisclaimerText returns the appropriate disclaimer text.
func (s *DisclaimerService) GetDisclaimerText() string {
	if s.config.CustomText != "" {
		return s.config.CustomText
	}

	switch s.config.Level {
	case DisclaimerShort:
		return disclaimerShortText
	case DisclaimerFull:
		return disclaimerFullText
	default:
		return disclaimerMediumText
	}
}

// Apply appends the disclaimer to a document if configured.
func (s *DisclaimerService) Apply(document string) string {
	if !s.config.Enabled {
		return document
	}

	disclaimer := s.GetDisclaimerText()

	// Don't add if already present
	if strings.Contains(document, disclaimer) {
		return document
	}

	return fmt.Sprintf("%s\n\n%s", strings.TrimRight(document, "\n"), disclaimer)
}
