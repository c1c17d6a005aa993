package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/kapu/taro-go/internal/constants"
)

// DecodeOptions are the sampling parameters sent with every model request.
type DecodeOptions struct {
	NumKeep          int     `json:"num_keep"`
	Seed             int     `json:"seed"`
	NumPredict       int     `json:"num_predict"`
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"top_k"`
	TopP             float64 `json:"top_p"`
	RepeatLastN      int     `json:"repeat_last_n"`
	RepeatPenalty    float64 `json:"repeat_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	NumCtx           int     `json:"num_ctx"`
}

func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		NumKeep:          constants.DecodeDefaults.NumKeep,
		Seed:             constants.DecodeDefaults.Seed,
		NumPredict:       constants.DecodeDefaults.NumPredict,
		Temperature:      constants.DecodeDefaults.Temperature,
		TopK:             constants.DecodeDefaults.TopK,
		TopP:             constants.DecodeDefaults.TopP,
		RepeatLastN:      constants.DecodeDefaults.RepeatLastN,
		RepeatPenalty:    constants.DecodeDefaults.RepeatPenalty,
		PresencePenalty:  constants.DecodeDefaults.PresencePenalty,
		FrequencyPenalty: constants.DecodeDefaults.FrequencyPenalty,
		NumCtx:           constants.DecodeDefaults.NumCtx,
	}
}

// DecodeKeys lists every recognised option key in wire order.
var DecodeKeys = []string{
	"num_keep", "seed", "num_predict", "temperature", "top_k", "top_p",
	"repeat_last_n", "repeat_penalty", "presence_penalty", "frequency_penalty", "num_ctx",
}

// Map returns the key/value view used as the model's options object.
func (o DecodeOptions) Map() map[string]any {
	return map[string]any{
		"num_keep":          o.NumKeep,
		"seed":              o.Seed,
		"num_predict":       o.NumPredict,
		"temperature":       o.Temperature,
		"top_k":             o.TopK,
		"top_p":             o.TopP,
		"repeat_last_n":     o.RepeatLastN,
		"repeat_penalty":    o.RepeatPenalty,
		"presence_penalty":  o.PresencePenalty,
		"frequency_penalty": o.FrequencyPenalty,
		"num_ctx":           o.NumCtx,
	}
}

// Apply returns a copy with the given keys overwritten. The receiver is left
// untouched, so shared defaults can be overridden per request. Any key outside
// DecodeKeys fails the whole update with an UnknownDecodeOptionError.
func (o DecodeOptions) Apply(overrides map[string]any) (DecodeOptions, error) {
	out := o
	for key, raw := range overrides {
		var err error
		switch key {
		case "num_keep":
			out.NumKeep, err = toInt(raw)
		case "seed":
			out.Seed, err = toInt(raw)
		case "num_predict":
			out.NumPredict, err = toInt(raw)
		case "temperature":
			out.Temperature, err = toFloat(raw)
		case "top_k":
			out.TopK, err = toInt(raw)
		case "top_p":
			out.TopP, err = toFloat(raw)
		case "repeat_last_n":
			out.RepeatLastN, err = toInt(raw)
		case "repeat_penalty":
			out.RepeatPenalty, err = toFloat(raw)
		case "presence_penalty":
			out.PresencePenalty, err = toFloat(raw)
		case "frequency_penalty":
			out.FrequencyPenalty, err = toFloat(raw)
		case "num_ctx":
			out.NumCtx, err = toInt(raw)
		default:
			return o, NewUnknownDecodeOptionError(key)
		}
		if err != nil {
			return o, fmt.Errorf("decode option %s: %w", key, err)
		}
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	default:
		f, err := toFloat(v)
		if err != nil {
			return 0, err
		}
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("expected an integer, got %v", f)
		}
		return int(f), nil
	}
}
