package providers

import (
	"errors"
	"fmt"

	"github.com/gookit/validate"

	"memoryd/internal/models"
	"memoryd/internal/structures"
)

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) *CnfValidator {
	return &CnfValidator{conf: conf}
}

func (cv *CnfValidator) Validate() error {
	v := validate.Struct(cv.conf)
	if !v.Validate() {
		return fmt.Errorf("invalid configuration: %s", v.Errors.One())
	}

	persona := cv.conf.Memory.DefaultPersona
	if persona.Tone != "" && !models.Tone(persona.Tone).Valid() {
		return fmt.Errorf("invalid configuration: unknown default persona tone %q", persona.Tone)
	}
	if persona.MessageLength != "" && !models.LengthPreference(persona.MessageLength).Valid() {
		return fmt.Errorf("invalid configuration: unknown default persona message length %q", persona.MessageLength)
	}
	if persona.EmojiFrequency < 0 || persona.EmojiFrequency > 1 || persona.SoftSell < 0 || persona.SoftSell > 1 {
		return errors.New("invalid configuration: persona frequencies must be within [0,1]")
	}
	if cv.conf.Classifier.Provider == "openai" && cv.conf.Classifier.APIKey == "" {
		return errors.New("invalid configuration: classifier.apiKey is required for the openai provider")
	}
	return nil
}

// DefaultPersona converts the configured persona, falling back to a friendly medium style.
func DefaultPersona(conf *structures.Config) models.CreatorPersona {
	p := conf.Memory.DefaultPersona
	persona := models.CreatorPersona{
		Tone:                    models.Tone(p.Tone),
		EmojiFrequency:          p.EmojiFrequency,
		MessageLength:           models.LengthPreference(p.MessageLength),
		BaseSoftSellProbability: p.SoftSell,
	}
	if !persona.Tone.Valid() {
		persona.Tone = models.ToneFriendly
	}
	if !persona.MessageLength.Valid() {
		persona.MessageLength = models.LengthMedium
	}
	return persona
}
