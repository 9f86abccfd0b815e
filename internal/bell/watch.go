package bell

// Watch is a traditional duty period of the ship's day.
type Watch int

const (
	MiddleWatch Watch = iota // 00:00-04:00
	MorningWatch             // 04:00-08:00
	ForenoonWatch            // 08:00-12:00
	AfternoonWatch           // 12:00-16:00
	FirstDogWatch            // 16:00-18:00
	LastDogWatch             // 18:00-20:00
	FirstWatch               // 20:00-24:00
)

var watchNames = map[Watch]string{
	MiddleWatch:    "Middle watch",
	MorningWatch:   "Morning watch",
	ForenoonWatch:  "Forenoon watch",
	AfternoonWatch: "Afternoon watch",
	FirstDogWatch:  "First dog watch",
	LastDogWatch:   "Last dog watch",
	FirstWatch:     "First watch",
}

func (w Watch) String() string {
	if name, ok := watchNames[w]; ok {
		return name
	}
	return "Unknown watch"
}

// WatchOf returns the watch in which secondsOfDay falls. The dog
// watches split 16:00-20:00 in two; the bell count still follows the
// four-hour cycle.
func WatchOf(secondsOfDay int) Watch {
	hour := NormalizeSeconds(secondsOfDay) / 3600
	switch {
	case hour < 16:
		return Watch(hour / 4)
	case hour < 18:
		return FirstDogWatch
	case hour < 20:
		return LastDogWatch
	default:
		return FirstWatch
	}
}
