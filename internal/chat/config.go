// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

// =============================================================================
// CONFIGURATION
// =============================================================================

// DefaultModel is the model used when none is configured.
const DefaultModel = "gpt-3.5-turbo"

// FormatType is the output format the model must produce.
type FormatType string

const (
	FormatText       FormatType = "text"
	FormatJSONObject FormatType = "json_object"
)

// ResponseFormat specifies the format that the model must output.
type ResponseFormat struct {
	Type FormatType `json:"type,omitempty"`
}

var (
	// ResponseFormatText requests plain text output.
	ResponseFormatText = ResponseFormat{Type: FormatText}

	// ResponseFormatJSON enables JSON mode. The conversation must also ask
	// for JSON, otherwise the model may stream whitespace until max tokens.
	ResponseFormatJSON = ResponseFormat{Type: FormatJSONObject}
)

// Param names an optional Configuration field, for Unset.
type Param int

const (
	ParamTemperature Param = iota
	ParamN
	ParamMaxTokens
	ParamTopP
	ParamFrequencyPenalty
	ParamPresencePenalty
	ParamLogprobs
	ParamResponseFormat
	ParamStop
)

// Configuration holds the model identifier and optional sampling parameters.
//
// Configuration is a value: every With method returns a modified copy and
// never touches the receiver, so a Configuration may be shared freely. An
// unset parameter is omitted from the request and the service default applies.
type Configuration struct {
	model            string
	temperature      *float64
	n                *int
	maxTokens        *int
	topP             *float64
	frequencyPenalty *float64
	presencePenalty  *float64
	logprobs         *int
	responseFormat   *ResponseFormat
	stop             []string
}

// DefaultConfiguration returns a Configuration for DefaultModel with every
// optional parameter unset.
func DefaultConfiguration() Configuration {
	return Configuration{model: DefaultModel}
}

// Model returns the model identifier.
func (c Configuration) Model() string {
	if c.model == "" {
		return DefaultModel
	}
	return c.model
}

// WithModel sets the ID of the model to use.
func (c Configuration) WithModel(model string) Configuration {
	c.model = model
	return c
}

// WithTemperature sets the sampling temperature, between 0 and 2.
func (c Configuration) WithTemperature(v float64) Configuration {
	c.temperature = &v
	return c
}

// WithN sets how many completion choices to generate per input message.
func (c Configuration) WithN(v int) Configuration {
	c.n = &v
	return c
}

// WithMaxTokens caps the number of tokens generated for the answer.
func (c Configuration) WithMaxTokens(v int) Configuration {
	c.maxTokens = &v
	return c
}

// WithTopP sets nucleus sampling mass; 0.1 keeps the top 10% of tokens.
func (c Configuration) WithTopP(v float64) Configuration {
	c.topP = &v
	return c
}

// WithFrequencyPenalty sets the frequency penalty, between -2.0 and 2.0.
func (c Configuration) WithFrequencyPenalty(v float64) Configuration {
	c.frequencyPenalty = &v
	return c
}

// WithPresencePenalty sets the presence penalty, between -2.0 and 2.0.
func (c Configuration) WithPresencePenalty(v float64) Configuration {
	c.presencePenalty = &v
	return c
}

// WithLogprobs asks for the log probabilities of the v most likely tokens.
func (c Configuration) WithLogprobs(v int) Configuration {
	c.logprobs = &v
	return c
}

// WithResponseFormat sets the output format.
func (c Configuration) WithResponseFormat(f ResponseFormat) Configuration {
	c.responseFormat = &f
	return c
}

// WithStop sets up to 4 sequences where generation stops. The returned text
// does not contain the stop sequence.
func (c Configuration) WithStop(stop ...string) Configuration {
	c.stop = append([]string(nil), stop...)
	return c
}

// Unset clears the given optional parameters so the service default applies.
func (c Configuration) Unset(params ...Param) Configuration {
	for _, p := range params {
		switch p {
		case ParamTemperature:
			c.temperature = nil
		case ParamN:
			c.n = nil
		case ParamMaxTokens:
			c.maxTokens = nil
		case ParamTopP:
			c.topP = nil
		case ParamFrequencyPenalty:
			c.frequencyPenalty = nil
		case ParamPresencePenalty:
			c.presencePenalty = nil
		case ParamLogprobs:
			c.logprobs = nil
		case ParamResponseFormat:
			c.responseFormat = nil
		case ParamStop:
			c.stop = nil
		}
	}
	return c
}

// Temperature returns the sampling temperature and whether it is set.
func (c Configuration) Temperature() (float64, bool) { return derefFloat(c.temperature) }

// N returns the number of choices and whether it is set.
func (c Configuration) N() (int, bool) { return derefInt(c.n) }

// MaxTokens returns the token cap and whether it is set.
func (c Configuration) MaxTokens() (int, bool) { return derefInt(c.maxTokens) }

// TopP returns the nucleus sampling mass and whether it is set.
func (c Configuration) TopP() (float64, bool) { return derefFloat(c.topP) }

// FrequencyPenalty returns the frequency penalty and whether it is set.
func (c Configuration) FrequencyPenalty() (float64, bool) { return derefFloat(c.frequencyPenalty) }

// PresencePenalty returns the presence penalty and whether it is set.
func (c Configuration) PresencePenalty() (float64, bool) { return derefFloat(c.presencePenalty) }

// Logprobs returns the log-probability count and whether it is set.
func (c Configuration) Logprobs() (int, bool) { return derefInt(c.logprobs) }

// ResponseFormat returns the output format and whether it is set.
func (c Configuration) ResponseFormat() (ResponseFormat, bool) {
	if c.responseFormat == nil {
		return ResponseFormat{}, false
	}
	return *c.responseFormat, true
}

// Stop returns a copy of the stop sequences.
func (c Configuration) Stop() []string {
	if c.stop == nil {
		return nil
	}
	return append([]string(nil), c.stop...)
}

func derefFloat(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func derefInt(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
