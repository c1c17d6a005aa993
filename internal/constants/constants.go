package constants

import "time"

var DecodeDefaults = struct {
	NumKeep          int
	Seed             int
	NumPredict       int
	Temperature      float64
	TopK             int
	TopP             float64
	RepeatLastN      int
	RepeatPenalty    float64
	PresencePenalty  float64
	FrequencyPenalty float64
	NumCtx           int
}{
	NumKeep:          5,
	Seed:             42,
	NumPredict:       300,
	Temperature:      0.8,
	TopK:             50,
	TopP:             0.9,
	RepeatLastN:      33,
	RepeatPenalty:    1.1,
	PresencePenalty:  1.5,
	FrequencyPenalty: 0.5,
	NumCtx:           2048,
}

// StoryNumPredict is the token budget of the final story_tell call.
const StoryNumPredict = 500

// FeedbackDelta is the per-request drift applied to a user's decoder state.
var FeedbackDelta = struct {
	Temperature      float64
	TopK             int
	TopP             float64
	RepeatLastN      int
	PresencePenalty  float64
	FrequencyPenalty float64
}{
	Temperature:      0.5,
	TopK:             10,
	TopP:             0.2,
	RepeatLastN:      2,
	PresencePenalty:  1e-7,
	FrequencyPenalty: 1e-7,
}

// DecodeBounds clamp drifted decoder states.
var DecodeBounds = struct {
	MinTemperature float64
	MaxTemperature float64
	MinTopK        int
	MaxTopK        int
	MinTopP        float64
	MaxTopP        float64
	MinRepeatLastN int
	MaxRepeatLastN int
	MinPenalty     float64
	MaxPenalty     float64
}{
	MinTemperature: 0.0,
	MaxTemperature: 2.0,
	MinTopK:        1,
	MaxTopK:        200,
	MinTopP:        0.05,
	MaxTopP:        1.0,
	MinRepeatLastN: 0,
	MaxRepeatLastN: 256,
	MinPenalty:     -2.0,
	MaxPenalty:     2.0,
}

var CacheTTL = struct {
	DecoderState time.Duration
}{
	DecoderState: 30 * time.Minute,
}

var RedisConfig = struct {
	ReadyTimeout time.Duration
}{
	ReadyTimeout: 5 * time.Second,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}{
	FailureThreshold:    3,
	ResetTimeout:        30 * time.Second,
	HealthCheckInterval: 1 * time.Minute,
	HealthCheckTimeout:  10 * time.Second,
}

var Timeouts = struct {
	ModelRequest   time.Duration
	ModelSetup     time.Duration
	Geocode        time.Duration
	Persist        time.Duration
	ServerRead     time.Duration
	ServerShutdown time.Duration
}{
	ModelRequest:   3 * time.Minute,
	ModelSetup:     15 * time.Second,
	Geocode:        10 * time.Second,
	Persist:        10 * time.Second,
	ServerRead:     30 * time.Second,
	ServerShutdown: 15 * time.Second,
}

var InputLimits = struct {
	MaxQuestionLength int
	MaxCardNameLength int
	MaxBodyBytes      int64
	MaxLoggedBody     int
}{
	MaxQuestionLength: 1000,
	MaxCardNameLength: 64,
	MaxBodyBytes:      64 << 10,
	MaxLoggedBody:     512,
}

var RateLimit = struct {
	PerSecond float64
	Burst     int
	IdleTTL   time.Duration
}{
	PerSecond: 1,
	Burst:     5,
	IdleTTL:   10 * time.Minute,
}

// NoCombinationHighlights is the story fallback when the combination reply lacks its highlights block.
const NoCombinationHighlights = "No combination highlights found."

// DefaultBirthPlace is used when a profile carries no birth place.
const DefaultBirthPlace = "Australia/Sydney"
