package scoring

import (
	"math"
	"time"
)

// DefaultTimeBonusRatio is the share of base points awarded for an instant answer.
const DefaultTimeBonusRatio = 0.5

// Config holds configurable scoring constants.
type Config struct {
	TimeBonusRatio float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{TimeBonusRatio: DefaultTimeBonusRatio}
}

// Engine computes server-side scores.
type Engine struct {
	config Config
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config Config) *Engine {
	if config.TimeBonusRatio < 0 {
		config.TimeBonusRatio = 0
	}
	return &Engine{config: config}
}

// Score computes points for a single answer.
// Formula: base + round(base * ratio * remaining / duration) when correct, 0 otherwise.
// remaining must come from the server's timer, never from the client.
func (e *Engine) Score(isCorrect bool, basePoints int, remaining, duration time.Duration) int {
	if !isCorrect || basePoints <= 0 {
		return 0
	}

	score := basePoints
	if duration > 0 {
		ratio := float64(remaining) / float64(duration)
		if ratio > 1.0 {
			ratio = 1.0
		}
		if ratio < 0.0 {
			ratio = 0.0
		}
		score += int(math.Round(float64(basePoints) * e.config.TimeBonusRatio * ratio))
	}
	return score
}
