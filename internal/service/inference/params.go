package inference

import "github.com/cloudwego/eino/components/model"

// DefaultStop ends generation at the Llama 3 end-of-turn markers.
var DefaultStop = []string{"<|eot_id|>", "<|end_of_text|>"}

// Params are the fixed decoding settings of one call site.
type Params struct {
	Name              string
	MaxNewTokens      int
	Temperature       float32
	TopP              float32
	RepetitionPenalty float32
	Stop              []string
}

// ChatParams favour varied conversational replies.
var ChatParams = Params{
	Name:              "chat",
	MaxNewTokens:      512,
	Temperature:       0.7,
	TopP:              0.9,
	RepetitionPenalty: 1.1,
	Stop:              DefaultStop,
}

// SummaryParams trade variety for more deterministic JSON.
var SummaryParams = Params{
	Name:              "summary",
	MaxNewTokens:      300,
	Temperature:       0.3,
	TopP:              0.8,
	RepetitionPenalty: 1.1,
	Stop:              DefaultStop,
}

// samplingOptions carries settings that have no common eino option.
type samplingOptions struct {
	RepetitionPenalty *float32
}

// WithRepetitionPenalty is honoured by the Hugging Face backend and ignored by
// the others.
func WithRepetitionPenalty(penalty float32) model.Option {
	return model.WrapImplSpecificOptFn(func(o *samplingOptions) {
		o.RepetitionPenalty = &penalty
	})
}

func (p Params) options() []model.Option {
	opts := []model.Option{
		model.WithMaxTokens(p.MaxNewTokens),
		model.WithTemperature(p.Temperature),
		model.WithTopP(p.TopP),
	}
	if len(p.Stop) > 0 {
		opts = append(opts, model.WithStop(append([]string(nil), p.Stop...)))
	}
	if p.RepetitionPenalty > 0 {
		opts = append(opts, WithRepetitionPenalty(p.RepetitionPenalty))
	}
	return opts
}
