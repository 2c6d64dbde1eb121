package sentiment

import "strings"

// Label is a coarse sentiment bucket.
type Label string

const (
	Neutral  Label = "neutral"
	Positive Label = "positive"
	Negative Label = "negative"
)

// Decision carries the detected sentiment and its keyword score.
type Decision struct {
	Sentiment Label
	Score     int
}

// Keyword buckets cover English and Spanish, matching the audience of the
// chat frontend this backend serves.
var keywordBuckets = map[Label][]string{
	Positive: {
		"great", "awesome", "amazing", "love", "thanks", "thank you", "happy",
		"glad", "wonderful", "perfect", "nice", "cool", "excelente", "gracias",
		"genial", "feliz", "me encanta", "bueno", "buenísimo", "increíble",
		"maravilloso", "perfecto", "me gusta", "contento", "contenta",
	},
	Negative: {
		"sad", "angry", "hate", "terrible", "awful", "upset", "annoyed", "cry",
		"depressed", "worried", "afraid", "broken", "triste", "enojado",
		"enojada", "odio", "horrible", "mal", "fatal", "preocupado",
		"preocupada", "miedo", "molesto", "molesta", "llorar", "deprimido",
	},
}

var punctuationBoost = map[Label]int{
	Positive: 2,
}

// Analyze scores the text against the keyword buckets and returns the best
// matching label, defaulting to neutral when nothing scores.
func Analyze(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Sentiment: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	if exclamations := strings.Count(text, "!"); exclamations > 0 && scores[Positive] > 0 {
		scores[Positive] += exclamations * punctuationBoost[Positive]
	}

	best := Neutral
	bestScore := 0
	for label, s := range scores {
		if s > bestScore {
			bestScore = s
			best = label
		}
	}

	if bestScore == 0 {
		return Decision{Sentiment: Neutral}
	}
	return Decision{Sentiment: best, Score: bestScore}
}
