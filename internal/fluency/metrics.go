package fluency

import (
	"strconv"
	"time"

	"github.com/MrWong99/fluency/pkg/provider/stt"
)

// AudioDuration returns the end time, in seconds, of the last timed word.
// It is 0 when no timing is available. Trailing silence after the last word
// is not counted.
func AudioDuration(words []stt.WordTiming) float64 {
	if len(words) == 0 {
		return 0
	}
	return float64(words[len(words)-1].EndTime) / float64(time.Second)
}

// Accuracy returns correct/total as a percentage rounded to one decimal
// place, or 0 when total is 0.
func Accuracy(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return roundTo(float64(correct)/float64(total)*100, 1)
}

// WordsPerMinute returns the spoken-word rate truncated to an integer, or 0
// when the duration is not positive. The rate counts transcript words, not
// passage words.
func WordsPerMinute(spokenWords int, durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 0
	}
	return int(float64(spokenWords) / (durationSeconds / 60))
}

// ComputeMetrics derives the objective metrics of a report.
func ComputeMetrics(correct, totalWords, spokenWords int, words []stt.WordTiming) ObjectiveMetrics {
	duration := AudioDuration(words)
	return ObjectiveMetrics{
		AccuracyPercent:      Fixed1(Accuracy(correct, totalWords)),
		WordsPerMinute:       WordsPerMinute(spokenWords, duration),
		CorrectWords:         correct,
		TotalWords:           totalWords,
		AudioDurationSeconds: Fixed2(roundTo(duration, 2)),
	}
}

// roundTo rounds x to the given number of decimal places using the exact
// binary value of x, with exact halves going to the even digit.
func roundTo(x float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	return r
}
