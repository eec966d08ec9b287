package ambient

import "time"

// Period is a coarse time-of-day bucket for preset dialogue.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodNoon      Period = "noon"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

// presetDialogues is the offline fallback table used whenever batched
// generation is unavailable or unparseable.
var presetDialogues = map[Period]map[string]string{
	PeriodMorning: {
		"老年李白": "清晨醒来,提笔记录昨夜梦中所得诗句。",
		"青年李白": "新的一天,继续游历四方,探索名山大川!",
		"中年李白": "在长安宫中,为今日的宫廷宴会准备诗作。",
	},
	PeriodNoon: {
		"老年李白": "漂泊路上,偶遇故人,把酒言欢,诗兴大发。",
		"青年李白": "游历至江南水乡,见小桥流水,灵感涌现。",
		"中年李白": "在长安市集中,观察市井生活,寻找创作灵感。",
	},
	PeriodAfternoon: {
		"老年李白": "午后独坐,思考人生,提笔写下心中感慨。",
		"青年李白": "登上名山,俯瞰群山,豪情万丈,欲作诗一首。",
		"中年李白": "在梁园中,与文人雅集,吟诗作对,好不快活。",
	},
	PeriodEvening: {
		"老年李白": "夜幕降临,举杯邀月,回忆往昔,感慨万千。",
		"青年李白": "夜晚宿于客栈,整理今日游历见闻,准备创作。",
		"中年李白": "傍晚时分,在长安宫中,为今日所见所感作诗。",
	},
}

// PeriodAt maps an hour of day to its preset period.
func PeriodAt(t time.Time) Period {
	switch hour := t.Hour(); {
	case hour >= 6 && hour < 12:
		return PeriodMorning
	case hour >= 12 && hour < 14:
		return PeriodNoon
	case hour >= 14 && hour < 18:
		return PeriodAfternoon
	default:
		return PeriodEvening
	}
}

// PresetDialogues returns a copy of the preset table for the period.
func PresetDialogues(p Period) map[string]string {
	src, ok := presetDialogues[p]
	if !ok {
		src = presetDialogues[PeriodMorning]
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ContextAt renders the scene description fed to the batched prompt.
func ContextAt(t time.Time) string {
	switch hour := t.Hour(); {
	case hour >= 6 && hour < 9:
		return "清晨时分,开始新的一天"
	case hour >= 9 && hour < 12:
		return "上午"
	case hour >= 12 && hour < 14:
		return "午餐时间"
	case hour >= 14 && hour < 17:
		return "下午"
	case hour >= 17 && hour < 19:
		return "傍晚时分"
	default:
		return "夜晚时分,各种思念之情涌现"
	}
}
