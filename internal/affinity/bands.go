package affinity

// Score bounds and the default for a first meeting.
const (
	MinScore     = 0
	MaxScore     = 100
	DefaultScore = 50
)

// MaxDelta bounds how far one exchange may move a score.
const MaxDelta = 5

// Band describes one contiguous score range and the conversational tone
// the character takes inside it.
type Band struct {
	Name     string
	Modifier string
	Low      int // inclusive
	High     int // exclusive, except the last band which includes MaxScore
}

// bands partition [0,100]. Order matters for lookup.
var bands = []Band{
	{Name: "陌生冷淡", Modifier: "语气疏离克制,回答简短,不主动展开话题", Low: 0, High: 20},
	{Name: "有所保留", Modifier: "语气客气但有距离,谨慎回应,不轻易透露内心想法", Low: 20, High: 40},
	{Name: "熟悉", Modifier: "礼貌友善,正常交流,保持专业", Low: 40, High: 60},
	{Name: "友好亲近", Modifier: "语气热情亲切,乐于分享见闻,主动关心对方", Low: 60, High: 80},
	{Name: "知己挚友", Modifier: "推心置腹,言谈随性洒脱,视对方为知音", Low: 80, High: 100},
}

// BandFor returns the band containing score. Scores outside [0,100] are
// clamped first.
func BandFor(score int) Band {
	score = ClampScore(score)
	for _, b := range bands[:len(bands)-1] {
		if score < b.High {
			return b
		}
	}
	return bands[len(bands)-1]
}

// ClampScore forces score into [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// ClampDelta forces a model-suggested delta into [-MaxDelta, MaxDelta].
func ClampDelta(delta int) int {
	if delta < -MaxDelta {
		return -MaxDelta
	}
	if delta > MaxDelta {
		return MaxDelta
	}
	return delta
}

// Bands returns a copy of the band table for presentation.
func Bands() []Band {
	out := make([]Band, len(bands))
	copy(out, bands)
	return out
}
