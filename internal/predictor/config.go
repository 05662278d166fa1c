package predictor

// Config holds predictor hyper-parameters.
type Config struct {
	SequenceLength     int            `yaml:"sequenceLength"`
	Seed               int64          `yaml:"seed"`
	ValidationFraction float64        `yaml:"validationFraction"`
	Sequence           SequenceConfig `yaml:"sequence"`
	Boosting           BoostingConfig `yaml:"boosting"`
}

// SequenceConfig tunes the windowed logistic sequence model.
type SequenceConfig struct {
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batchSize"`
	LearningRate float64 `yaml:"learningRate"`
	L2           float64 `yaml:"l2"`
	Decay        float64 `yaml:"decay"`
}

// BoostingConfig tunes the gradient-boosted tree model.
type BoostingConfig struct {
	Trees          int     `yaml:"trees"`
	MaxDepth       int     `yaml:"maxDepth"`
	LearningRate   float64 `yaml:"learningRate"`
	Lambda         float64 `yaml:"lambda"`
	MinChildWeight float64 `yaml:"minChildWeight"`
	MaxBins        int     `yaml:"maxBins"`
	EarlyStopping  int     `yaml:"earlyStoppingRounds"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SequenceLength:     24,
		Seed:               42,
		ValidationFraction: 0.2,
		Sequence: SequenceConfig{
			Epochs:       20,
			BatchSize:    32,
			LearningRate: 0.05,
			L2:           1e-3,
			Decay:        0.85,
		},
		Boosting: BoostingConfig{
			Trees:          100,
			MaxDepth:       3,
			LearningRate:   0.1,
			Lambda:         1,
			MinChildWeight: 1,
			MaxBins:        32,
			EarlyStopping:  20,
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SequenceLength <= 0 {
		c.SequenceLength = def.SequenceLength
	}
	if c.ValidationFraction <= 0 || c.ValidationFraction >= 1 {
		c.ValidationFraction = def.ValidationFraction
	}
	if c.Sequence.Epochs <= 0 {
		c.Sequence.Epochs = def.Sequence.Epochs
	}
	if c.Sequence.BatchSize <= 0 {
		c.Sequence.BatchSize = def.Sequence.BatchSize
	}
	if c.Sequence.LearningRate <= 0 {
		c.Sequence.LearningRate = def.Sequence.LearningRate
	}
	if c.Sequence.L2 < 0 {
		c.Sequence.L2 = def.Sequence.L2
	}
	if c.Sequence.Decay <= 0 || c.Sequence.Decay >= 1 {
		c.Sequence.Decay = def.Sequence.Decay
	}
	if c.Boosting.Trees <= 0 {
		c.Boosting.Trees = def.Boosting.Trees
	}
	if c.Boosting.MaxDepth <= 0 {
		c.Boosting.MaxDepth = def.Boosting.MaxDepth
	}
	if c.Boosting.LearningRate <= 0 {
		c.Boosting.LearningRate = def.Boosting.LearningRate
	}
	if c.Boosting.Lambda < 0 {
		c.Boosting.Lambda = def.Boosting.Lambda
	}
	if c.Boosting.MinChildWeight <= 0 {
		c.Boosting.MinChildWeight = def.Boosting.MinChildWeight
	}
	if c.Boosting.MaxBins < 2 {
		c.Boosting.MaxBins = def.Boosting.MaxBins
	}
	if c.Boosting.EarlyStopping < 0 {
		c.Boosting.EarlyStopping = def.Boosting.EarlyStopping
	}
	return c
}
